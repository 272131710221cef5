package domain

// Cart is the authoritative remote object. The server owns it; the client
// only ever holds the copy returned by the last confirmed call.
type Cart struct {
	Token    string      `json:"token"`
	Version  int64       `json:"version"`
	Items    []LineItem  `json:"items"`
	Totals   Totals      `json:"totals"`
	Promos   []Promotion `json:"promotions,omitempty"`
	Warnings []Warning   `json:"warnings,omitempty"`
}

// LineItem is a single cart line, keyed by a server-assigned id.
// All prices are minor currency units.
type LineItem struct {
	ID        string `json:"id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Totals are recomputed by the server on every mutation. The client never
// treats its own arithmetic as authoritative.
type Totals struct {
	Subtotal   int64 `json:"subtotal"`
	Discount   int64 `json:"discount"`
	GrandTotal int64 `json:"grand_total"`
}

// Promotion is an applied discount, surfaced to the UI as-is.
type Promotion struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
}

// Warning is a stock or price-change notice attached by the server.
// Warnings do not affect the cart version.
type Warning struct {
	Code   string `json:"code"`
	LineID string `json:"line_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// FindLine returns the line with the given id, or nil.
func (c *Cart) FindLine(lineID string) *LineItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			return &c.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can build local views without
// touching the confirmed snapshot.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]LineItem(nil), c.Items...)
	cp.Promos = append([]Promotion(nil), c.Promos...)
	cp.Warnings = append([]Warning(nil), c.Warnings...)
	return &cp
}
