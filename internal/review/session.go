// Package review drives the staff payment-proof review of a single order.
package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
)

// Verifier commits a review decision. The order cache satisfies it, so each
// committed decision is followed by a full reload of the order collection.
type Verifier interface {
	UpdatePaymentVerification(ctx context.Context, id string, status domain.VerificationStatus, reason string) (*domain.Order, error)
}

type Badge string

const (
	BadgePending  Badge = "pending"
	BadgeAccepted Badge = "accepted"
	BadgeRejected Badge = "rejected"
)

// View is what the reviewing screen renders. ReasonVisible and
// CanSubmitReject belong to the reviewer's in-progress rejection, which lives
// only in this Session, so they are not part of the JSON form.
type View struct {
	OrderID         string                    `json:"orderId"`
	ProofImage      string                    `json:"proofImage,omitempty"`
	Status          domain.VerificationStatus `json:"status"`
	Badge           Badge                     `json:"badge"`
	RejectionReason string                    `json:"rejectionReason,omitempty"`
	CanAccept       bool                      `json:"canAccept"`
	CanReject       bool                      `json:"canReject"`
	ReasonVisible   bool                      `json:"-"`
	CanSubmitReject bool                      `json:"-"`
}

// Session holds the two-step rejection state for one reviewer.
// Not safe for concurrent use.
type Session struct {
	verifier  Verifier
	order     domain.Order
	rejecting bool
	reason    string
}

func NewSession(v Verifier, o domain.Order) *Session {
	return &Session{verifier: v, order: o}
}

func (s *Session) Order() domain.Order {
	return s.order
}

func (s *Session) accepted() bool {
	return s.order.PaymentVerificationStatus == domain.VerificationAccepted
}

func (s *Session) CanAccept() bool {
	return !s.accepted()
}

func (s *Session) ReasonVisible() bool {
	return s.rejecting
}

func (s *Session) View() View {
	return View{
		OrderID:         s.order.ID,
		ProofImage:      s.order.PaymentConfirmationImage,
		Status:          s.order.PaymentVerificationStatus,
		Badge:           badgeFor(s.order.PaymentVerificationStatus),
		RejectionReason: s.order.RejectionReason,
		CanAccept:       s.CanAccept(),
		CanReject:       !s.accepted(),
		ReasonVisible:   s.rejecting,
		CanSubmitReject: s.rejecting && strings.TrimSpace(s.reason) != "",
	}
}

func (s *Session) Accept(ctx context.Context) error {
	if !s.CanAccept() {
		return fmt.Errorf("%w: payment already accepted", domain.ErrInvalidTransition)
	}
	return s.commit(ctx, domain.VerificationAccepted, "")
}

// BeginReject is the first rejection step: it only reveals the reason field.
func (s *Session) BeginReject() error {
	if s.accepted() {
		return fmt.Errorf("%w: payment already accepted", domain.ErrInvalidTransition)
	}
	s.rejecting = true
	return nil
}

func (s *Session) SetReason(reason string) {
	s.reason = reason
}

func (s *Session) CancelReject() {
	s.rejecting = false
	s.reason = ""
}

// SubmitReject is the second step; it commits only with a non-empty reason.
func (s *Session) SubmitReject(ctx context.Context) error {
	if !s.rejecting {
		return fmt.Errorf("%w: rejection not started", domain.ErrValidation)
	}
	if strings.TrimSpace(s.reason) == "" {
		return fmt.Errorf("%w: rejection reason is required", domain.ErrValidation)
	}
	return s.commit(ctx, domain.VerificationRejected, s.reason)
}

func (s *Session) commit(ctx context.Context, to domain.VerificationStatus, reason string) error {
	o, err := s.verifier.UpdatePaymentVerification(ctx, s.order.ID, to, reason)
	if err != nil {
		return err
	}
	s.order = *o
	s.rejecting = false
	s.reason = ""
	return nil
}

func badgeFor(v domain.VerificationStatus) Badge {
	switch v {
	case domain.VerificationAccepted:
		return BadgeAccepted
	case domain.VerificationRejected:
		return BadgeRejected
	default:
		return BadgePending
	}
}
