package cart

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"infrastreet/marketplace/internal/model"
)

var (
	ErrNegativePrice   = errors.New("item price is negative")
	ErrUnknownItem     = errors.New("item is not on the vendor menu")
	ErrItemUnavailable = errors.New("item is not available")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// MissingItemsError is returned by Total when cart entries are no longer on the menu snapshot.
type MissingItemsError struct {
	ItemIDs []string
}

func (e *MissingItemsError) Error() string {
	return fmt.Sprintf("items no longer on the menu: %s", strings.Join(e.ItemIDs, ", "))
}

type Line struct {
	Item     model.MenuItem
	Quantity int
}

// Cart maps menu item ids to positive quantities for a single vendor's menu.
// An entry never holds a quantity below 1.
type Cart struct {
	mu    sync.Mutex
	menu  map[string]model.MenuItem
	order []string
	qty   map[string]int
}

func New(menu []model.MenuItem) *Cart {
	c := &Cart{qty: make(map[string]int)}
	c.menu = indexMenu(menu)
	return c
}

// SetMenu replaces the menu snapshot used for lookups and totals. Entries are kept.
func (c *Cart) SetMenu(menu []model.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menu = indexMenu(menu)
}

func (c *Cart) Add(item model.MenuItem) error {
	if item.Price < 0 {
		return ErrNegativePrice
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	listed, ok := c.menu[item.ItemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, item.ItemID)
	}
	if listed.Price < 0 {
		return ErrNegativePrice
	}
	if !listed.Available() {
		return fmt.Errorf("%w: %q", ErrItemUnavailable, listed.Name)
	}

	if _, ok := c.qty[item.ItemID]; !ok {
		c.order = append(c.order, item.ItemID)
	}
	c.qty[item.ItemID]++
	return nil
}

// Remove decrements an entry by delta and deletes it once it reaches zero.
// Removing an item that is not in the cart is a no-op.
func (c *Cart) Remove(itemID string, delta int) error {
	if delta <= 0 {
		return ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.qty[itemID]
	if !ok {
		return nil
	}
	if q-delta <= 0 {
		c.deleteLocked(itemID)
		return nil
	}
	c.qty[itemID] = q - delta
	return nil
}

func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, q := range c.qty {
		n += q
	}
	return n
}

// Total prices every entry against the current menu snapshot.
func (c *Cart) Total() (Money, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total Money
	var missing []string
	for _, id := range c.order {
		item, ok := c.menu[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		total += FromFloat(item.Price) * Money(c.qty[id])
	}
	if len(missing) > 0 {
		return 0, &MissingItemsError{ItemIDs: missing}
	}
	return total, nil
}

// Lines returns entries in the order they were first added. Items missing from the
// snapshot carry only their id.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		item, ok := c.menu[id]
		if !ok {
			item = model.MenuItem{ItemID: id}
		}
		lines = append(lines, Line{Item: item, Quantity: c.qty[id]})
	}
	return lines
}

func (c *Cart) OrderItems() []model.OrderItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]model.OrderItem, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, model.OrderItem{ItemID: id, Quantity: c.qty[id]})
	}
	return items
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qty = make(map[string]int)
	c.order = nil
}

func (c *Cart) deleteLocked(itemID string) {
	delete(c.qty, itemID)
	for i, id := range c.order {
		if id == itemID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func indexMenu(menu []model.MenuItem) map[string]model.MenuItem {
	idx := make(map[string]model.MenuItem, len(menu))
	for _, item := range menu {
		idx[item.ItemID] = item
	}
	return idx
}
