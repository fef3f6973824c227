package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service"
	"infrastreet/marketplace/internal/service/cart"
	"infrastreet/marketplace/internal/service/checkout"
)

var (
	itemFlags []string
	yesFlag   bool
)

var menuCmd = &cobra.Command{
	Use:   "menu <vendor-id>",
	Short: "Show a vendor's menu",
	Args:  cobra.ExactArgs(1),
	RunE:  runMenu,
}

var orderCmd = &cobra.Command{
	Use:   "order <vendor-id>",
	Short: "Place a pickup order",
	Long: `Builds a cart from --item flags and places one order with the vendor.
Each flag is an item id with an optional quantity: --item taco-1=2 --item horchata.`,
	Args: cobra.ExactArgs(1),
	RunE: runOrder,
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Show past orders and recommended vendors",
	RunE:  runOrders,
}

func init() {
	orderCmd.Flags().StringArrayVar(&itemFlags, "item", nil, "Item id with optional quantity (id=qty)")
	orderCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Place the order without asking")
	_ = orderCmd.MarkFlagRequired("item")
}

func runMenu(cmd *cobra.Command, args []string) error {
	vendor, err := app.client.GetVendor(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", vendor.Name)
	if vendor.BusinessHours != "" {
		fmt.Fprintf(out, "Open %s\n", vendor.BusinessHours)
	}
	if len(vendor.Menu) == 0 {
		fmt.Fprintln(out, "No menu items yet.")
		return nil
	}
	for _, item := range vendor.Menu {
		status := ""
		if !item.Available() {
			status = "  (sold out)"
		}
		fmt.Fprintf(out, "  %-12s %-24s $%6.2f%s\n", item.ItemID, item.Name, item.Price, status)
	}
	return nil
}

// parseItems turns "id" and "id=qty" flags into quantities, keeping first-seen order.
func parseItems(flags []string) ([]string, map[string]int, error) {
	var order []string
	qty := make(map[string]int)
	for _, f := range flags {
		id, n := f, 1
		if i := strings.LastIndex(f, "="); i >= 0 {
			id = f[:i]
			parsed, err := strconv.Atoi(f[i+1:])
			if err != nil || parsed <= 0 {
				return nil, nil, fmt.Errorf("invalid quantity in %q", f)
			}
			n = parsed
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, nil, fmt.Errorf("missing item id in %q", f)
		}
		if _, ok := qty[id]; !ok {
			order = append(order, id)
		}
		qty[id] += n
	}
	return order, qty, nil
}

func fillCart(c *cart.Cart, menu []model.MenuItem, order []string, qty map[string]int) error {
	byID := make(map[string]model.MenuItem, len(menu))
	for _, item := range menu {
		byID[item.ItemID] = item
	}
	for _, id := range order {
		item, ok := byID[id]
		if !ok {
			item = model.MenuItem{ItemID: id}
		}
		for i := 0; i < qty[id]; i++ {
			if err := c.Add(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func runOrder(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	vendorID := args[0]

	provider, err := locationFrom(cmd)
	if err != nil {
		return err
	}
	ids, qty, err := parseItems(itemFlags)
	if err != nil {
		return err
	}

	vendor, err := app.client.GetVendor(ctx, vendorID)
	if err != nil {
		return err
	}
	c := cart.New(vendor.Menu)
	if err := fillCart(c, vendor.Menu, ids, qty); err != nil {
		return err
	}
	total, err := c.Total()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printCart(out, c, total)

	if !yesFlag {
		ok, err := confirm(cmd, "Place this order? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Order not placed.")
			return nil
		}

		// The menu may have changed while the prompt was open.
		vendor, err = app.client.GetVendor(ctx, vendorID)
		if err != nil {
			return err
		}
		c.SetMenu(vendor.Menu)
		current, err := c.Total()
		if err != nil {
			return err
		}
		if current != total {
			fmt.Fprintf(out, "Prices changed, new total: %s\n", current)
		}
	}

	flow := checkout.NewFlow(app.client, c, vendorID, app.sessions.Current().Phone, logger)
	if loc, err := provider.Current(ctx); err == nil {
		flow.SetLocation(loc)
	}
	order, err := flow.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Order %s placed. Pickup code: %s\n", order.OrderID, order.PickupCode)
	return nil
}

func printCart(w io.Writer, c *cart.Cart, total cart.Money) {
	for _, line := range c.Lines() {
		fmt.Fprintf(w, "  %dx %s\n", line.Quantity, line.Item.Name)
	}
	fmt.Fprintf(w, "Total: %s\n", total)
}

func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprint(cmd.OutOrStdout(), question)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func runOrders(cmd *cobra.Command, args []string) error {
	st, err := requireSignedIn()
	if err != nil {
		return err
	}

	history, err := service.NewMarketService(app.client, logger).History(cmd.Context(), st.Phone)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(history.Orders) == 0 {
		fmt.Fprintln(out, "No orders yet.")
	}
	for _, o := range history.Orders {
		name := o.VendorName
		if name == "" {
			name = o.VendorID
		}
		line := fmt.Sprintf("%s  %-10s %s", o.OrderID, o.Status, name)
		if o.Total != nil {
			line += fmt.Sprintf("  $%.2f", *o.Total)
		}
		if o.PickupCode != "" && o.Status != model.StatusCompleted {
			line += "  pickup " + o.PickupCode
		}
		fmt.Fprintln(out, line)
	}

	if len(history.Recommendations) > 0 {
		fmt.Fprintln(out, "\nYou might also like:")
		for _, v := range history.Recommendations {
			printVendor(out, v)
		}
	}
	return nil
}
