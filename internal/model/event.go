package model

// EventTypeLowStock identifies low-stock alert events.
const EventTypeLowStock = "LOW_STOCK"

// LowStockEvent is the payload handed to the alert dispatcher when a product
// enters a low-stock episode.
type LowStockEvent struct {
	EventType       string   `json:"event_type"`
	ProductID       string   `json:"product_id"`
	ProductName     string   `json:"product_name"`
	Category        string   `json:"category"`
	CurrentQuantity int64    `json:"current_quantity"`
	Threshold       int64    `json:"threshold"`
	Recipients      []string `json:"recipients"`
}

// Caller is the authenticated identity the HTTP layer hands to the core.
type Caller struct {
	Subject string
	Email   string
	Groups  []string
}

// User groups recognised by the authorisation layer.
const (
	GroupManager = "MANAGER"
	GroupStaff   = "STAFF"
)

// InGroup reports whether the caller belongs to any of the given groups.
func (c *Caller) InGroup(groups ...string) bool {
	for _, have := range c.Groups {
		for _, want := range groups {
			if have == want {
				return true
			}
		}
	}
	return false
}
