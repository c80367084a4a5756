package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lowfatcats/contentstore/pkg/content"
	"github.com/lowfatcats/contentstore/pkg/pager"
)

// readFlags are the option flags shared by read commands.
type readFlags struct {
	options map[string]string
	filter  string
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringToStringVarP(&f.options, "option", "o", nil, "read option as key=value (repeatable), e.g. -o limit=10 -o ascending=false")
	cmd.Flags().StringVar(&f.filter, "filter", "", "filter expression, e.g. 'animalStatus:Available;-featured'")
}

func (f *readFlags) build() content.Options {
	opts := content.Options{}
	for k, v := range f.options {
		opts[k] = v
	}
	if f.filter != "" {
		opts["filter"] = f.filter
	}
	return opts
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) getCommand() *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Read a Content item",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			res, err := rt.service.Get(cmd.Context(), args[0], flags.build())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	flags.register(cmd)
	return cmd
}

func (a *app) briefCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "brief <type> <iid>",
		Short: "Read a Brief item",
		Args:  cobra.ExactArgs(2),
		RunE: a.withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			res, err := rt.service.GetBrief(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func (a *app) listCommand() *cobra.Command {
	var flags readFlags
	var random bool
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "Select a window of items from an id list or a stored list",
		Long: "Select a window of items of a type. Use -o ids=a,b,c for an explicit list " +
			"or -o list=<content id> for the list stored under Data.<type>.",
		Args: cobra.ExactArgs(1),
		RunE: a.withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			var (
				res content.ListResult
				err error
			)
			if random {
				res, err = rt.service.GetRandomList(cmd.Context(), args[0], flags.build())
			} else {
				res, err = rt.service.GetList(cmd.Context(), args[0], flags.build())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&random, "random", false, "pick a random sample instead of a window")
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query Brief items of a type",
	}

	var tsFlags readFlags
	tsCmd := &cobra.Command{
		Use:   "ts <type>",
		Short: "One page of Brief items ordered by TS",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			res, err := rt.service.QueryByTypeTS(cmd.Context(), args[0], tsFlags.build())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	tsFlags.register(tsCmd)

	var featuredFlags readFlags
	featuredCmd := &cobra.Command{
		Use:   "featured <type>",
		Short: "One page of featured Brief items, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			res, err := rt.service.QueryByTypeFeatured(cmd.Context(), args[0], featuredFlags.build())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	featuredFlags.register(featuredCmd)

	var typeFlags readFlags
	var typeMax int
	typeCmd := &cobra.Command{
		Use:   "type <type>",
		Short: "Stream every Brief item of a type in IID order as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			return streamJSONLines(cmd, rt, rt.service.QueryByType(args[0], typeFlags.build()), typeMax)
		}),
	}
	typeFlags.register(typeCmd)
	typeCmd.Flags().IntVar(&typeMax, "max", 0, "stop after this many items (0 means all)")

	cmd.AddCommand(tsCmd, featuredCmd, typeCmd)
	return cmd
}

func (a *app) scanCommand() *cobra.Command {
	var flags readFlags
	var brief bool
	var max int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Stream every Content (or Brief) item as JSON lines",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			if brief {
				return streamJSONLines(cmd, rt, rt.service.ScanBrief(flags.build()), max)
			}
			return streamJSONLines(cmd, rt, rt.service.Scan(flags.build()), max)
		}),
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&brief, "brief", false, "scan Brief items instead of Content items")
	cmd.Flags().IntVar(&max, "max", 0, "stop after this many items (0 means all)")
	return cmd
}

// streamJSONLines prints records until the pager ends or max records were
// printed. Stopping early abandons the traversal.
func streamJSONLines(cmd *cobra.Command, rt *runtime, p *pager.Pager, max int) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	n := 0
	for rec, err := range p.All(cmd.Context()) {
		if err != nil {
			return fmt.Errorf("traversal failed after %d items: %w", n, err)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		n++
		if max > 0 && n >= max {
			break
		}
	}
	stats := p.Stats()
	rt.log.Info("traversal finished",
		"items", n,
		"pages", stats.Pages,
		"scanned", stats.TotalScanned,
		"consumed_capacity", stats.ConsumedCapacity,
	)
	return nil
}
