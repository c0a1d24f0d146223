package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apiclient "github.com/donaldgifford/property-price-tracker/internal/api/client"
)

// addFilterFlags registers the listing filters shared by listings and stats.
func addFilterFlags(cmd *cobra.Command, f *apiclient.Filters) {
	cmd.Flags().StringVar(&f.PropertyType, "type", "", "property type")
	cmd.Flags().StringVar(&f.Area, "area", "", "area")
	cmd.Flags().StringSliceVar(&f.AnyArea, "any-area", nil, "match any of these areas")
	cmd.Flags().StringVar(&f.Municipality, "municipality", "", "municipality")
	cmd.Flags().StringVar(&f.Province, "province", "", "province")
	cmd.Flags().StringVar(&f.Bedrooms, "bedrooms", "", "bedrooms as listed")
	cmd.Flags().StringVar(&f.MinPrice, "min-price", "", "minimum list price")
	cmd.Flags().StringVar(&f.MaxPrice, "max-price", "", "maximum list price")
	cmd.Flags().BoolVar(&f.PriceDecreased, "price-decreased", false, "only listings at their lowest price after a drop")
	cmd.Flags().StringVar(&f.Search, "search", "", "address substring")
}

func listingsCmd() *cobra.Command {
	listingsRoot := &cobra.Command{
		Use:   "listings",
		Short: "Query listings and price history",
	}

	listingsRoot.AddCommand(
		listingsListCmd(),
		listingsGetCmd(),
		listingsHistoryCmd(),
	)

	return listingsRoot
}

func listingsListCmd() *cobra.Command {
	var params apiclient.ListListingsParams

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List listings",
		Example: `  ppt listings list --type Condo --area Toronto --order-by price
  ppt listings list -p commercial --price-decreased --limit 50`,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := partition()
			if err != nil {
				return err
			}
			resp, err := newClient().ListListings(context.Background(), p, &params)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			if len(resp.Listings) == 0 {
				fmt.Println("No listings found.")
				return nil
			}
			if err := printListingsTable(os.Stdout, resp.Listings); err != nil {
				return err
			}
			fmt.Printf("\nShowing %d-%d of %d\n", resp.Offset+1, resp.Offset+len(resp.Listings), resp.Total)
			return nil
		},
	}

	addFilterFlags(cmd, &params.Filters)
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "number of results (default 10)")
	cmd.Flags().IntVar(&params.Offset, "offset", 0, "pagination offset")
	cmd.Flags().StringVar(&params.OrderBy, "order-by", "", "timestamp, price or price_desc")

	return cmd
}

func listingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <mls>",
		Short: "Show one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := partition()
			if err != nil {
				return err
			}
			l, err := newClient().GetListing(context.Background(), p, args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(l)
			}
			return printListingDetail(os.Stdout, l)
		},
	}
}

func listingsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <mls>",
		Short: "Show the price history of a listing",
		Long:  "History is kept after a listing leaves the feed, so removed listings still have one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := partition()
			if err != nil {
				return err
			}
			h, err := newClient().GetPriceHistory(context.Background(), p, args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(h)
			}
			return printHistoryTable(os.Stdout, h)
		},
	}
}
