package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/analytics"
	"fintrack/internal/chat"
	"fintrack/internal/config"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

type summaryOptions struct {
	groupBy string
	from    string
	to      string
	asJSON  bool
}

func newSummaryCommand(a *app) *cobra.Command {
	var opts summaryOptions

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print ledger totals grouped by category, month or type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStoreConfig()
			if err != nil {
				return err
			}
			return runSummary(cmd, cfg, a.logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.groupBy, "group-by", string(analytics.ByCategory), "grouping: category, month or type")
	cmd.Flags().StringVar(&opts.from, "from", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last date to include (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the summary as JSON")

	return cmd
}

func (o summaryOptions) query() (analytics.Query, error) {
	var q analytics.Query
	groupBy, err := analytics.ParseGroupBy(o.groupBy)
	if err != nil {
		return q, err
	}
	q.GroupBy = groupBy
	if o.from != "" {
		if q.From, err = core.ParseDate(o.from); err != nil {
			return q, fmt.Errorf("--from: %w", err)
		}
	}
	if o.to != "" {
		if q.To, err = core.ParseDate(o.to); err != nil {
			return q, fmt.Errorf("--to: %w", err)
		}
	}
	return q, q.Validate()
}

func runSummary(cmd *cobra.Command, cfg *config.Config, logger *applog.Logger, opts summaryOptions) error {
	q, err := opts.query()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runCleanup(cleanup) }()

	l := chat.NewLedger(store, chat.LedgerConfig{
		CacheSize:    1,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger.WithComponent(applog.ComponentLedger).Logger,
	})
	res, err := l.Summary(ctx, q)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printSummary(cmd.OutOrStdout(), res, cfg.CurrencySymbol)
}

func printSummary(out io.Writer, res analytics.Result, currency string) error {
	if res.IsEmpty() {
		_, err := fmt.Fprintln(out, "No transactions.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\tCOUNT\tINCOME\tEXPENSES\tTOTAL\tRUNNING\t\n", res.GroupBy)
	for _, g := range res.Groups {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t\n",
			g.Key, g.Count,
			core.FormatAmount(g.Income, currency),
			core.FormatAmount(g.Expenses, currency),
			core.FormatAmount(g.Total, currency),
			core.FormatAmount(g.Running, currency))
	}
	fmt.Fprintf(tw, "net\t%d\t%s\t%s\t%s\t\t\n",
		res.Count,
		core.FormatAmount(res.Income, currency),
		core.FormatAmount(res.Expenses, currency),
		core.FormatAmount(res.Net, currency))
	return tw.Flush()
}
