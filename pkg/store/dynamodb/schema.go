package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// TableCreator creates a table and waits for it. Adapter implements it.
type TableCreator interface {
	CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, maxWait time.Duration) error
}

// TableDefinitions returns the Content and Brief table schemas. Brief carries
// the TypeTS and TypeFeatured local secondary indexes.
func TableDefinitions(prefix string) []*dynamodb.CreateTableInput {
	return []*dynamodb.CreateTableInput{
		{
			TableName: aws.String(prefix + string(document.ContentTable)),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(document.AttrID), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(document.AttrID), AttributeType: types.ScalarAttributeTypeS},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(10),
				WriteCapacityUnits: aws.Int64(10),
			},
		},
		{
			TableName: aws.String(prefix + string(document.BriefTable)),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(document.AttrType), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(document.AttrIID), KeyType: types.KeyTypeRange},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(document.AttrType), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(document.AttrIID), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(document.AttrTS), AttributeType: types.ScalarAttributeTypeN},
				{AttributeName: aws.String(document.AttrFeatureDate), AttributeType: types.ScalarAttributeTypeN},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(15),
				WriteCapacityUnits: aws.Int64(15),
			},
			LocalSecondaryIndexes: []types.LocalSecondaryIndex{
				localIndex(document.IndexTypeTS),
				localIndex(document.IndexTypeFeatured),
			},
		},
	}
}

func localIndex(index document.Index) types.LocalSecondaryIndex {
	return types.LocalSecondaryIndex{
		IndexName: aws.String(string(index)),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(document.AttrType), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(index.SortAttribute()), KeyType: types.KeyTypeRange},
		},
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

// CreateTables creates both tables, stopping at the first failure.
func CreateTables(ctx context.Context, creator TableCreator, prefix string, maxWait time.Duration) error {
	for _, input := range TableDefinitions(prefix) {
		if err := creator.CreateTable(ctx, input, maxWait); err != nil {
			return err
		}
	}
	return nil
}
