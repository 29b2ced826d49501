package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID                        string             `json:"id"`
	Date                      time.Time          `json:"date"`
	Status                    Status             `json:"status"`
	Total                     decimal.Decimal    `json:"total"`
	PaymentConfirmationImage  string             `json:"paymentConfirmationImage,omitempty"`
	PaymentMethod             PaymentMethod      `json:"paymentMethod"`
	PaymentVerificationStatus VerificationStatus `json:"paymentVerificationStatus"`
	RejectionReason           string             `json:"rejectionReason,omitempty"`
	CustomerName              string             `json:"customerName,omitempty"`
	CustomerEmail             string             `json:"customerEmail,omitempty"`
	ShippingAddress           string             `json:"shippingAddress,omitempty"`
	UpdatedAt                 time.Time          `json:"updatedAt"`
	Items                     []OrderItem        `json:"items"`
}

type OrderItem struct {
	OrderID    string          `json:"orderId"`
	ProductRef string          `json:"productRef"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ImageRef   string          `json:"imageRef,omitempty"`
}

// Money columns are NUMERIC(12,2) and quantity is INT.
const (
	MoneyScale  = 2
	MaxQuantity = math.MaxInt32
)

// MoneyLimit is the first amount a NUMERIC(12,2) column cannot hold.
var MoneyLimit = decimal.New(1, 10)

// CheckMoney rejects amounts the store would round or overflow.
func CheckMoney(what string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s must be >= 0", ErrValidation, what)
	}
	if !d.Equal(d.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrValidation, what, d, MoneyScale)
	}
	if d.GreaterThanOrEqual(MoneyLimit) {
		return fmt.Errorf("%w: %s %s must be below %s", ErrValidation, what, d, MoneyLimit)
	}
	return nil
}

// Subtotal is price * quantity for a single line.
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func (it OrderItem) Validate() error {
	if strings.TrimSpace(it.ProductRef) == "" {
		return fmt.Errorf("%w: item productRef is required", ErrValidation)
	}
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrValidation)
	}
	if it.Quantity <= 0 || it.Quantity > MaxQuantity {
		return fmt.Errorf("%w: item %q quantity must be in 1..%d", ErrValidation, it.ProductRef, MaxQuantity)
	}
	return CheckMoney(fmt.Sprintf("item %q price", it.ProductRef), it.Price)
}

// ValidateItems checks a full line-item set: at least one line, every line
// valid, and a total the order row can store.
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return CheckMoney("order total", ItemsTotal(items))
}

func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// AttachItems stamps the owning order id on every line.
func (o *Order) AttachItems(items []OrderItem) {
	o.Items = make([]OrderItem, len(items))
	for i, it := range items {
		it.OrderID = o.ID
		o.Items[i] = it
	}
}

// NewOrderID returns an opaque, human-readable order identifier.
func NewOrderID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:12])
}
