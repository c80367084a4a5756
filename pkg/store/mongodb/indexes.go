package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lowfatcats/contentstore/pkg/repository/document"
)

// IndexCreator creates indexes on a collection. Adapter implements it.
type IndexCreator interface {
	CreateIndexes(ctx context.Context, collection string, models []mongo.IndexModel) error
}

// BriefIndexes mirrors the TypeTS and TypeFeatured access paths. Each index is
// partial so it only holds documents carrying its sort attribute.
func BriefIndexes() []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, 2)
	for _, index := range []document.Index{document.IndexTypeTS, document.IndexTypeFeatured} {
		attr := index.SortAttribute()
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: document.AttrType, Value: 1}, {Key: attr, Value: 1}, {Key: idField, Value: 1}},
			Options: options.Index().
				SetName(string(index)).
				SetPartialFilterExpression(bson.D{{Key: attr, Value: bson.D{{Key: "$exists", Value: true}}}}),
		})
	}
	return models
}

// EnsureIndexes creates the Brief secondary indexes. Content only needs _id.
func EnsureIndexes(ctx context.Context, creator IndexCreator, prefix string) error {
	return creator.CreateIndexes(ctx, prefix+string(document.BriefTable), BriefIndexes())
}
