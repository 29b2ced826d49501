package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/logger"
	"github.com/RaikyD/reptile-orders-service/internal/metrics"
	"github.com/RaikyD/reptile-orders-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Publisher receives an event after each committed mutation.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, ev domain.OrderEvent) error
}

type CreateOrderInput struct {
	ID                       string               `json:"id,omitempty"`
	Total                    decimal.Decimal      `json:"total"`
	PaymentMethod            domain.PaymentMethod `json:"paymentMethod"`
	PaymentConfirmationImage string               `json:"paymentConfirmationImage,omitempty"`
	CustomerName             string               `json:"customerName,omitempty"`
	CustomerEmail            string               `json:"customerEmail,omitempty"`
	ShippingAddress          string               `json:"shippingAddress,omitempty"`
	Items                    []domain.OrderItem   `json:"items"`
}

type Option func(*OrdersService)

func WithPublisher(p Publisher) Option {
	return func(s *OrdersService) { s.pub = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OrdersService) { s.metrics = m }
}

func WithStatusPolicy(p domain.StatusPolicy) Option {
	return func(s *OrdersService) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *OrdersService) { s.now = now }
}

type OrdersService struct {
	repo    repository.OrderRepo
	pub     Publisher
	metrics *metrics.Metrics
	policy  domain.StatusPolicy
	now     func() time.Time
}

func NewOrdersService(r repository.OrderRepo, opts ...Option) *OrdersService {
	s := &OrdersService{
		repo:   r,
		policy: domain.PermissiveStatus{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OrdersService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	o, err := s.newOrder(in)
	if err != nil {
		s.metrics.ObserveMutation("create", err)
		return nil, err
	}

	created, err := s.repo.CreateOrder(ctx, o)
	s.metrics.ObserveMutation("create", err)
	if err != nil {
		logger.Warn("create order failed", "order_id", o.ID, "err", err)
		return nil, err
	}

	logger.Info("order created", "order_id", created.ID, "items", len(created.Items), "total", created.Total.String())
	s.publish(ctx, domain.EventOrderCreated, created.ID)
	return created, nil
}

// Validate runs every check CreateOrder applies before touching the store.
func (in CreateOrderInput) Validate() error {
	if err := domain.ValidateItems(in.Items); err != nil {
		return err
	}
	if _, err := domain.ParsePaymentMethod(string(in.PaymentMethod)); err != nil {
		return err
	}

	// The total is derived from the lines; a caller-supplied total must agree.
	total := domain.ItemsTotal(in.Items)
	if !in.Total.IsZero() && !in.Total.Equal(total) {
		return fmt.Errorf("%w: total %s does not match items total %s", domain.ErrValidation, in.Total, total)
	}
	return nil
}

func (s *OrdersService) newOrder(in CreateOrderInput) (*domain.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	total := domain.ItemsTotal(in.Items)

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = domain.NewOrderID()
	}
	now := s.now().UTC()

	o := &domain.Order{
		ID:                        id,
		Date:                      now,
		Status:                    domain.StatusConfirmed,
		Total:                     total,
		PaymentConfirmationImage:  strings.TrimSpace(in.PaymentConfirmationImage),
		PaymentMethod:             in.PaymentMethod,
		PaymentVerificationStatus: domain.VerificationPending,
		CustomerName:              strings.TrimSpace(in.CustomerName),
		CustomerEmail:             strings.TrimSpace(in.CustomerEmail),
		ShippingAddress:           strings.TrimSpace(in.ShippingAddress),
		UpdatedAt:                 now,
	}
	o.AttachItems(in.Items)
	return o, nil
}

func (s *OrdersService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *OrdersService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

// UpdateItems replaces the order's lines and recomputes its total.
func (s *OrdersService) UpdateItems(ctx context.Context, id string, items []domain.OrderItem) (*domain.Order, error) {
	if err := domain.ValidateItems(items); err != nil {
		s.metrics.ObserveMutation("update_items", err)
		return nil, err
	}

	o, err := s.repo.ReplaceItems(ctx, id, items, domain.ItemsTotal(items))
	s.metrics.ObserveMutation("update_items", err)
	if err != nil {
		return nil, err
	}

	logger.Info("order items replaced", "order_id", id, "items", len(o.Items))
	s.publish(ctx, domain.EventOrderItemsReplaced, id)
	return o, nil
}

func (s *OrdersService) UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Order, error) {
	to, err := domain.ParseStatus(string(status))
	if err != nil {
		s.metrics.ObserveMutation("update_status", err)
		return nil, err
	}

	var from domain.Status
	o, err := s.repo.UpdateStatus(ctx, id, func(current domain.Status) (domain.Status, error) {
		from = current
		if !s.policy.Allow(current, to) {
			return "", fmt.Errorf("%w: status %s -> %s", domain.ErrInvalidTransition, current, to)
		}
		return to, nil
	})
	s.metrics.ObserveMutation("update_status", err)
	if err != nil {
		return nil, err
	}

	logger.Info("order status changed", "order_id", id, "from", from, "to", to)
	s.publish(ctx, domain.EventOrderStatusChanged, id)
	return o, nil
}

// UpdatePaymentVerification records a staff decision on the payment proof.
// Request errors are reported before the store is touched.
func (s *OrdersService) UpdatePaymentVerification(ctx context.Context, id string, status domain.VerificationStatus, reason string) (*domain.Order, error) {
	if err := domain.CheckVerificationRequest(status, reason); err != nil {
		s.metrics.ObserveMutation("update_verification", err)
		return nil, err
	}

	o, err := s.repo.UpdateVerification(ctx, id, func(v *domain.Verification) error {
		return v.Transition(status, reason)
	})
	s.metrics.ObserveMutation("update_verification", err)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Info("payment verification refused", "order_id", id, "to", status, "err", err)
		}
		return nil, err
	}

	logger.Info("payment verification changed", "order_id", id, "status", o.PaymentVerificationStatus)
	s.publish(ctx, domain.EventPaymentVerification, id)
	return o, nil
}

func (s *OrdersService) DeleteOrder(ctx context.Context, id string) error {
	err := s.repo.DeleteOrder(ctx, id)
	s.metrics.ObserveMutation("delete", err)
	if err != nil {
		return err
	}

	logger.Info("order deleted", "order_id", id)
	s.publish(ctx, domain.EventOrderDeleted, id)
	return nil
}

// publish is best effort: the mutation is already committed.
func (s *OrdersService) publish(ctx context.Context, typ domain.EventType, orderID string) {
	if s.pub == nil {
		return
	}
	ev := domain.OrderEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		OrderID:    orderID,
		OccurredAt: s.now().UTC(),
	}
	if err := s.pub.PublishOrderEvent(ctx, ev); err != nil {
		logger.Warn("publish order event failed", "order_id", orderID, "type", typ, "err", err)
	}
}
