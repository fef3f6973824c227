package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"infrastreet/marketplace/internal/config"
	"infrastreet/marketplace/internal/logging"
)

var (
	// Global flags
	verbose bool
	latFlag float64
	lngFlag float64

	logger *zap.Logger
	app    *appContext
)

var rootCmd = &cobra.Command{
	Use:   "infrastreet",
	Short: "InfraStreet - street food near you",
	Long: `infrastreet is the command-line client for the InfraStreet marketplace.

Customers sign up with a phone number, search nearby vendors by voice or text, browse
deals and place pickup orders. Vendors onboard their cart, manage the menu and work
incoming orders from the dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return err
		}

		app, err = newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().Float64Var(&latFlag, "lat", 0, "Current latitude")
	rootCmd.PersistentFlags().Float64Var(&lngFlag, "lng", 0, "Current longitude")

	rootCmd.AddCommand(
		signupCmd,
		vendorSignupCmd,
		whoamiCmd,
		signoutCmd,
		searchCmd,
		dealsCmd,
		menuCmd,
		orderCmd,
		ordersCmd,
		dashboardCmd,
		acceptCmd,
		readyCmd,
		advanceCmd,
		addItemCmd,
		uploadMenuCmd,
		mcpCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// PersistentPostRun is skipped when a command fails.
		if app != nil {
			app.Close()
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
