package domain

import "time"

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodStripe PaymentMethod = "Stripe"
)

type Address struct {
	FirstName string `bson:"firstName" json:"firstName"`
	LastName  string `bson:"lastName" json:"lastName"`
	Email     string `bson:"email" json:"email"`
	Street    string `bson:"street" json:"street"`
	City      string `bson:"city" json:"city"`
	State     string `bson:"state" json:"state"`
	Country   string `bson:"country" json:"country"`
	Zipcode   string `bson:"zipcode" json:"zipcode"`
	Phone     string `bson:"phone" json:"phone"`
}

// LineItem is a catalog product plus the chosen size and quantity, priced at checkout time.
type LineItem struct {
	ProductID string  `bson:"productId" json:"productId"`
	Name      string  `bson:"name" json:"name"`
	Size      string  `bson:"size,omitempty" json:"size,omitempty"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	Price     float64 `bson:"price" json:"price"`
}

type Order struct {
	ID            string        `json:"_id"`
	UserID        string        `json:"userId"`
	Items         []LineItem    `json:"items"`
	Address       Address       `json:"address"`
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Payment       bool          `json:"payment"`
	Status        OrderStatus   `json:"status"`
	Date          time.Time     `json:"date"`
	UpdatedAt     time.Time     `json:"updatedAt"`

	// SessionID and ConfirmationToken tie a hosted-gateway order to its checkout session.
	// The token is single use and is cleared once the payment outcome is recorded.
	SessionID         string `json:"-"`
	ConfirmationToken string `json:"-"`

	// ExpiredAt is set when the sweeper cancels an unpaid order. Only such orders
	// can still be settled by a late payment.
	ExpiredAt *time.Time `json:"-"`
}

// AwaitingPayment is true for hosted-gateway orders the gateway has not confirmed yet.
func (o *Order) AwaitingPayment() bool {
	return o.PaymentMethod == PaymentMethodStripe && !o.Payment
}

// Settleable is true while a gateway payment can still be recorded against the order.
func (o *Order) Settleable() bool {
	if !o.AwaitingPayment() {
		return false
	}
	return o.Status == OrderStatusPlaced || (o.Status == OrderStatusCancelled && o.ExpiredAt != nil)
}
