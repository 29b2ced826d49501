package domain

import (
	"encoding/json"
	"fmt"
)

// Status is the fulfillment progress of an order.
type Status string

const (
	StatusConfirmed  Status = "Confirmed"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
)

var statusRank = map[Status]int{
	StatusConfirmed:  0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
	}
	return st, nil
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// StatusPolicy decides whether a fulfillment status change is allowed.
type StatusPolicy interface {
	Allow(from, to Status) bool
}

// PermissiveStatus accepts any target status, mirroring the staff dropdown.
type PermissiveStatus struct{}

func (PermissiveStatus) Allow(_, _ Status) bool { return true }

// ForwardStatus only allows Confirmed -> Processing -> Shipped -> Delivered,
// one step at a time. Re-setting the current status is a no-op and allowed.
type ForwardStatus struct{}

func (ForwardStatus) Allow(from, to Status) bool {
	return statusRank[to] == statusRank[from] || statusRank[to] == statusRank[from]+1
}

func PolicyByName(name string) (StatusPolicy, error) {
	switch name {
	case "", "permissive":
		return PermissiveStatus{}, nil
	case "forward":
		return ForwardStatus{}, nil
	default:
		return nil, fmt.Errorf("unknown status policy %q", name)
	}
}

// PaymentMethod tags how the customer paid.
type PaymentMethod string

const (
	PaymentManualTransfer PaymentMethod = "ManualTransfer"
	PaymentCard           PaymentMethod = "Card"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(s); pm {
	case PaymentManualTransfer, PaymentCard:
		return pm, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, s)
}

func (p *PaymentMethod) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	pm, err := ParsePaymentMethod(raw)
	if err != nil {
		return err
	}
	*p = pm
	return nil
}
