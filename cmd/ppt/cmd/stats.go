package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apiclient "github.com/donaldgifford/property-price-tracker/internal/api/client"
)

func statsCmd() *cobra.Command {
	var (
		filters apiclient.Filters
		span    int
		metrics []string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show price statistics",
		Long: "Shows avg, median and sd of list prices over recent listings matching the filters.\n" +
			"Each metric reports whether it was served from the cache.",
		Example: `  ppt stats --area Toronto --type Condo
  ppt stats -p commercial --span 12 --metrics median`,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := partition()
			if err != nil {
				return err
			}
			st, err := newClient().GetStats(context.Background(), p, &filters, span, metrics)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(st)
			}
			fmt.Printf("Partition %s, last %d months\n\n", st.Partition, st.SpanMonths)
			return printStatsTable(os.Stdout, st)
		},
	}

	addFilterFlags(cmd, &filters)
	cmd.Flags().IntVar(&span, "span", 0, "months of listings to include (default 3)")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "metrics to compute: avg, median, sd")

	return cmd
}
