package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle      CheckoutStatus = "IDLE"
	CheckoutStatusAddress   CheckoutStatus = "ADDRESS"
	CheckoutStatusShipping  CheckoutStatus = "SHIPPING"
	CheckoutStatusPayment   CheckoutStatus = "PAYMENT"
	CheckoutStatusConfirm   CheckoutStatus = "CONFIRM"
	CheckoutStatusCompleted CheckoutStatus = "COMPLETED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted
}

// String returns the status name for logging.
func (s CheckoutStatus) String() string {
	return string(s)
}

// rank orders the steps; transitions only ever move to a higher rank.
// Re-entering an earlier step re-issues its update call instead.
func (s CheckoutStatus) rank() int {
	switch s {
	case CheckoutStatusIdle:
		return 0
	case CheckoutStatusAddress:
		return 1
	case CheckoutStatusShipping:
		return 2
	case CheckoutStatusPayment:
		return 3
	case CheckoutStatusConfirm:
		return 4
	case CheckoutStatusCompleted:
		return 5
	}
	return -1
}

// AtLeast reports whether the flow has reached the given step.
func (s CheckoutStatus) AtLeast(step CheckoutStatus) bool {
	return s.rank() >= step.rank()
}

// Address is a shipping or billing address as the backend accepts it.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type ShippingMethod struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type PaymentProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CheckoutSession is the short-lived server-side resource derived from a
// cart snapshot. It is not versioned like the cart: every step update
// returns a fresh pricing snapshot that fully replaces the client's copy.
type CheckoutSession struct {
	ID              string           `json:"id"`
	CartToken       string           `json:"cart_token"`
	Status          CheckoutStatus   `json:"status"`
	Items           []LineItem       `json:"items"`
	Totals          Totals           `json:"totals"`
	ShippingAddress *Address         `json:"shipping_address,omitempty"`
	BillingAddress  *Address         `json:"billing_address,omitempty"`
	ShippingMethod  *ShippingMethod  `json:"shipping_method,omitempty"`
	PaymentProvider *PaymentProvider `json:"payment_provider,omitempty"`
	OrderID         string           `json:"order_id,omitempty"`
}
