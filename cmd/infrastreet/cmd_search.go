package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/deals"
	"infrastreet/marketplace/internal/service/location"
	"infrastreet/marketplace/internal/service/search"
	"infrastreet/marketplace/internal/service/voice"
)

var searchCmd = &cobra.Command{
	Use:   "search [what you're craving]",
	Short: "Find vendors nearby by voice or text",
	Long: `Searches vendors around --lat/--lng. Without arguments the query is read from
the prompt, the same way a spoken request would be captured.`,
	RunE: runSearch,
}

var dealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "List flash deals that are still running nearby",
	RunE:  runDeals,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	provider, err := locationFrom(cmd)
	if err != nil {
		return err
	}

	capture := voice.NewCapture(nil, cmd.InOrStdin(), out)
	flow := search.NewFlow(app.client, capture, logger)
	if err := flow.ResolveLocation(ctx, provider); err != nil {
		if errors.Is(err, location.ErrUnavailable) {
			fmt.Fprintln(out, search.MessageEnableLocation)
		}
		return err
	}

	var st search.State
	if len(args) > 0 {
		st, err = flow.Search(ctx, strings.Join(args, " "))
	} else {
		st, err = flow.Listen(ctx)
	}
	if st.Phase == search.PhaseCancelled {
		fmt.Fprintln(out, "Search cancelled.")
		return nil
	}
	if err != nil {
		if st.Message != "" {
			fmt.Fprintln(out, st.Message)
		}
		return err
	}

	if st.Message != "" {
		fmt.Fprintln(out, st.Message)
	}
	for _, v := range st.Vendors {
		printVendor(out, v)
	}
	return nil
}

func printVendor(w io.Writer, v model.Vendor) {
	line := fmt.Sprintf("%s  [%s]", v.Name, v.VendorID)
	if v.DistanceMeters != nil {
		line += "  " + deals.FormatDistance(*v.DistanceMeters)
	}
	fmt.Fprintln(w, line)
	for _, item := range v.MatchingItems {
		fmt.Fprintf(w, "    %s  $%.2f\n", item.Name, item.Price)
	}
}

func runDeals(cmd *cobra.Command, args []string) error {
	provider, err := locationFrom(cmd)
	if err != nil {
		return err
	}
	feed := deals.NewFeed(app.client, provider,
		deals.WithFallback(app.cfg.DefaultLocation),
		deals.WithLogger(logger),
	)
	res, err := feed.Nearby(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.UsedFallback {
		fmt.Fprintf(out, "Location unavailable, showing deals around %.4f, %.4f.\n", res.Location.Lat, res.Location.Lng)
	}
	if len(res.Deals) == 0 {
		fmt.Fprintln(out, "No active deals nearby.")
		return nil
	}

	for _, d := range res.Deals {
		line := fmt.Sprintf("%s at %s  $%.2f", d.ItemName, d.VendorName, d.DealPrice)
		if pct := deals.Savings(d); pct > 0 {
			line += fmt.Sprintf(" (save %d%%)", pct)
		}
		if deals.HasBadge(d) {
			line += "  HOT"
		}
		if left, ok := deals.TimeLeft(d, res.At); ok {
			line += "  " + deals.FormatTimeLeft(left) + " left"
		}
		if d.DistanceMeters != nil {
			line += "  " + deals.FormatDistance(*d.DistanceMeters)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
