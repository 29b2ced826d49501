package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VerificationStatus is the staff review state of the uploaded payment proof.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "Pending"
	VerificationAccepted VerificationStatus = "Accepted"
	VerificationRejected VerificationStatus = "Rejected"
)

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch v := VerificationStatus(s); v {
	case VerificationPending, VerificationAccepted, VerificationRejected:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown payment verification status %q", ErrValidation, s)
}

func (v *VerificationStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	vs, err := ParseVerificationStatus(raw)
	if err != nil {
		return err
	}
	*v = vs
	return nil
}

// Verification is the slice of an order owned by the payment review workflow.
type Verification struct {
	Status          VerificationStatus
	RejectionReason string
}

// CheckVerificationRequest validates the request itself, independent of the
// current state, so bad input never reaches the store.
func CheckVerificationRequest(to VerificationStatus, reason string) error {
	switch to {
	case VerificationAccepted:
		return nil
	case VerificationRejected:
		if strings.TrimSpace(reason) == "" {
			return fmt.Errorf("%w: rejection reason is required", ErrValidation)
		}
		return nil
	case VerificationPending:
		return fmt.Errorf("%w: payment verification cannot be reset to %s", ErrValidation, to)
	default:
		return fmt.Errorf("%w: unknown payment verification status %q", ErrValidation, to)
	}
}

// Transition applies a review decision.
// Accepted is terminal: both re-accepting and rejecting afterwards fail.
func (v *Verification) Transition(to VerificationStatus, reason string) error {
	if err := CheckVerificationRequest(to, reason); err != nil {
		return err
	}
	if v.Status == VerificationAccepted {
		return fmt.Errorf("%w: payment already accepted", ErrInvalidTransition)
	}

	v.Status = to
	if to == VerificationRejected {
		v.RejectionReason = strings.TrimSpace(reason)
	} else {
		v.RejectionReason = ""
	}
	return nil
}

func (o *Order) Verification() Verification {
	return Verification{Status: o.PaymentVerificationStatus, RejectionReason: o.RejectionReason}
}
