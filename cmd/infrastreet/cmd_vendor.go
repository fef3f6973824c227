package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/dashboard"
)

var descriptionFlag string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Watch incoming orders until interrupted",
	RunE:  runDashboard,
}

var acceptCmd = &cobra.Command{
	Use:   "accept <order-id>",
	Short: "Start preparing a pending order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], (*dashboard.Dashboard).Accept)
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready <order-id>",
	Short: "Mark a preparing order ready for pickup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], (*dashboard.Dashboard).MarkReady)
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance <order-id>",
	Short: "Move an order to its next status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], (*dashboard.Dashboard).Advance)
	},
}

var addItemCmd = &cobra.Command{
	Use:   "add-item <name> <price>",
	Short: "Add an item to your menu",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddItem,
}

var uploadMenuCmd = &cobra.Command{
	Use:   "upload-menu <photo>",
	Short: "Upload a menu photo for item extraction",
	Args:  cobra.ExactArgs(1),
	RunE:  runUploadMenu,
}

func init() {
	addItemCmd.Flags().StringVar(&descriptionFlag, "description", "", "Item description")
}

func openDashboard(onUpdate func(dashboard.Snapshot)) (*dashboard.Dashboard, error) {
	if _, err := requireSignedIn(); err != nil {
		return nil, err
	}
	return dashboard.New(app.client, app.sessions.Current().VendorID, dashboard.Config{
		Interval: app.cfg.PollInterval,
		OnUpdate: onUpdate,
	}, logger)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	g, ctx := errgroup.WithContext(cmd.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d, err := openDashboard(func(s dashboard.Snapshot) {
		printSnapshot(out, s)
		if !app.sessions.Current().SignedIn() {
			fmt.Fprintln(out, "Signed out elsewhere, closing dashboard.")
			cancel()
		}
	})
	if err != nil {
		return err
	}

	g.Go(func() error { return app.sessions.Watch(ctx) })
	g.Go(func() error { return d.Run(ctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printSnapshot(w io.Writer, s dashboard.Snapshot) {
	if s.Vendor != nil {
		fmt.Fprintf(w, "== %s  %s ==\n", s.Vendor.Name, s.UpdatedAt.Format("15:04:05"))
	}
	if s.Err != nil {
		fmt.Fprintf(w, "Refresh failed: %v\n", s.Err)
	}

	active := 0
	for _, o := range s.Orders {
		if o.Status != model.StatusPending && o.Status != model.StatusPreparing {
			continue
		}
		active++
		fmt.Fprintf(w, "  %s  %-10s", o.OrderID, o.Status)
		for _, item := range o.Items {
			name := item.Name
			if name == "" {
				name = item.ItemID
			}
			fmt.Fprintf(w, "  %dx %s", item.Quantity, name)
		}
		fmt.Fprintln(w)
	}
	if active == 0 {
		fmt.Fprintln(w, "  No active orders.")
	}
}

type transitionFunc func(*dashboard.Dashboard, context.Context, string) (*model.Order, error)

func runTransition(cmd *cobra.Command, orderID string, fn transitionFunc) error {
	d, err := openDashboard(nil)
	if err != nil {
		return err
	}
	if err := d.Load(cmd.Context()); err != nil {
		return err
	}

	order, err := fn(d, cmd.Context(), orderID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Order %s is now %s.\n", order.OrderID, order.Status)
	return nil
}

func runAddItem(cmd *cobra.Command, args []string) error {
	price, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[1], err)
	}

	d, err := openDashboard(nil)
	if err != nil {
		return err
	}
	item, err := d.AddMenuItem(cmd.Context(), args[0], price, descriptionFlag)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s ($%.2f) as %s.\n", item.Name, item.Price, item.ItemID)
	return nil
}

func runUploadMenu(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read menu photo: %w", err)
	}

	d, err := openDashboard(nil)
	if err != nil {
		return err
	}
	res, err := d.UploadMenu(cmd.Context(), filepath.Base(args[0]), data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Menu uploaded: %d items extracted.\n", res.ItemsExtracted)
	return nil
}
