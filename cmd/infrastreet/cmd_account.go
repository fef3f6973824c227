package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/onboarding"
)

var (
	phoneFlag    string
	nameFlag     string
	hoursFlag    string
	menuFileFlag string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Sign in or register as a customer",
	RunE:  runSignup,
}

var vendorSignupCmd = &cobra.Command{
	Use:   "vendor-signup",
	Short: "Register a food cart at the current location",
	Long: `Registers the vendor user, creates the cart at --lat/--lng and, when --menu is
given, uploads a photo of the menu for item extraction.`,
	RunE: runVendorSignup,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Forget the stored identity on every surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.sessions.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

func init() {
	signupCmd.Flags().StringVar(&phoneFlag, "phone", "", "Phone number")
	_ = signupCmd.MarkFlagRequired("phone")

	vendorSignupCmd.Flags().StringVar(&nameFlag, "name", "", "Business name")
	vendorSignupCmd.Flags().StringVar(&phoneFlag, "phone", "", "Phone number")
	vendorSignupCmd.Flags().StringVar(&hoursFlag, "hours", "", "Business hours, e.g. 11am-9pm")
	vendorSignupCmd.Flags().StringVar(&menuFileFlag, "menu", "", "Menu photo (png or jpeg)")
	_ = vendorSignupCmd.MarkFlagRequired("phone")
}

func onboardingService(cmd *cobra.Command) (*onboarding.Service, error) {
	loc, err := locationFrom(cmd)
	if err != nil {
		return nil, err
	}
	return onboarding.NewService(app.client, app.sessions, loc, logger), nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	svc, err := onboardingService(cmd)
	if err != nil {
		return err
	}
	reg, err := svc.RegisterCustomer(cmd.Context(), phoneFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if reg.IsExisting {
		fmt.Fprintf(out, "Welcome back, %s.\n", reg.Phone)
	} else {
		fmt.Fprintf(out, "Welcome to InfraStreet, %s.\n", reg.Phone)
	}
	if reg.Role == model.RoleVendor {
		fmt.Fprintln(out, "This number belongs to a vendor. Use 'infrastreet dashboard'.")
	}
	return nil
}

func runVendorSignup(cmd *cobra.Command, args []string) error {
	in := onboarding.VendorSignup{
		Name:          nameFlag,
		Phone:         phoneFlag,
		BusinessHours: hoursFlag,
	}
	if menuFileFlag != "" {
		data, err := os.ReadFile(menuFileFlag)
		if err != nil {
			return fmt.Errorf("failed to read menu photo: %w", err)
		}
		in.MenuImage = data
		in.MenuFilename = filepath.Base(menuFileFlag)
	}

	svc, err := onboardingService(cmd)
	if err != nil {
		return err
	}
	res, err := svc.RegisterVendor(cmd.Context(), in)
	if res != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Cart %q is live at %.5f, %.5f (vendor %s).\n",
			res.Vendor.Name, res.Location.Lat, res.Location.Lng, res.Vendor.VendorID)
		if res.Upload != nil {
			fmt.Fprintf(out, "Menu uploaded: %d items extracted.\n", res.Upload.ItemsExtracted)
		}
	}
	return err
}

func runWhoami(cmd *cobra.Command, args []string) error {
	svc, err := onboardingService(cmd)
	if err != nil {
		return err
	}
	user, err := svc.Restore(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if user == nil {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}
	fmt.Fprintf(out, "%s (%s)\n", user.Phone, user.Role)
	if user.Role == model.RoleVendor {
		if id := app.sessions.Current().VendorID; id != "" {
			fmt.Fprintf(out, "Vendor: %s\n", id)
		}
	}
	return nil
}
