package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type OrderRepo interface {
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ReplaceItems(ctx context.Context, id string, items []domain.OrderItem, total decimal.Decimal) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, next func(current domain.Status) (domain.Status, error)) (*domain.Order, error)
	UpdateVerification(ctx context.Context, id string, apply func(v *domain.Verification) error) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type OrderRepository struct {
	db DB
}

func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const selectOrder = `
	SELECT id, created_at, status, total::text, payment_image, payment_method,
	       verification_status, rejection_reason, customer_name, customer_email,
	       shipping_address, updated_at
	FROM orders`

const selectItems = `
	SELECT order_id, product_ref, name, quantity, price::text, image_ref
	FROM order_items
	WHERE order_id = ANY($1)
	ORDER BY order_id, position`

const insertItem = `
	INSERT INTO order_items (order_id, position, product_ref, name, quantity, price, image_ref)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// inTx runs fn inside one transaction. Anything short of a successful commit
// rolls back.
func (p *OrderRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Warn("rollback failed", "err", rbErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	tx = nil
	if err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}

func (p *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	var created *domain.Order
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders
				(id, created_at, status, total, payment_image, payment_method,
				 verification_status, rejection_reason, customer_name, customer_email,
				 shipping_address, updated_at)
			VALUES
				($1, $2, $3, $4, $5, $6,
				 $7, $8, $9, $10,
				 $11, $12)`,
			o.ID,
			o.Date,
			string(o.Status),
			o.Total.String(),
			o.PaymentConfirmationImage,
			string(o.PaymentMethod),
			string(o.PaymentVerificationStatus),
			nullable(o.RejectionReason),
			o.CustomerName,
			o.CustomerEmail,
			o.ShippingAddress,
			o.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, o.ID)
			}
			logger.Warn("insert order header failed", "order_id", o.ID, "err", err)
			return storageErr("insert order", err)
		}
		if err := insertItems(ctx, tx, o.ID, o.Items); err != nil {
			return err
		}

		// hand back what the columns actually hold
		created, err = loadOrder(ctx, tx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p *OrderRepository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, p.db, id)
}

// ListOrders returns every order with its items, most recent first.
func (p *OrderRepository) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := p.db.Query(ctx, selectOrder+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, storageErr("list orders", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	byOrder, err := loadItems(ctx, p.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return orders, nil
}

func (p *OrderRepository) ReplaceItems(ctx context.Context, id string, items []domain.OrderItem, total decimal.Decimal) (*domain.Order, error) {
	var out *domain.Order
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockOrder(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
			return storageErr("delete items", err)
		}
		if err := insertItems(ctx, tx, id, items); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET total = $2, updated_at = now() WHERE id = $1`, id, total.String()); err != nil {
			return storageErr("update total", err)
		}

		var err error
		out, err = loadOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus writes only the fulfillment status column.
func (p *OrderRepository) UpdateStatus(ctx context.Context, id string, next func(current domain.Status) (domain.Status, error)) (*domain.Order, error) {
	var out *domain.Order
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		to, err := next(cur.status)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, string(to)); err != nil {
			return storageErr("update status", err)
		}

		out, err = loadOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateVerification writes only the verification status and rejection reason.
func (p *OrderRepository) UpdateVerification(ctx context.Context, id string, apply func(v *domain.Verification) error) (*domain.Order, error) {
	var out *domain.Order
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		v := cur.verification
		if err := apply(&v); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE orders SET verification_status = $2, rejection_reason = $3, updated_at = now() WHERE id = $1`,
			id, string(v.Status), nullable(v.RejectionReason),
		)
		if err != nil {
			return storageErr("update verification", err)
		}

		out, err = loadOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOrder removes the header and all of its items together.
func (p *OrderRepository) DeleteOrder(ctx context.Context, id string) error {
	return p.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockOrder(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
			return storageErr("delete items", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
			return storageErr("delete order", err)
		}
		return nil
	})
}

type lockedOrder struct {
	status       domain.Status
	verification domain.Verification
}

// lockOrder takes the header row lock so item replacement, deletion and
// transitions on the same order are serialized.
func lockOrder(ctx context.Context, tx pgx.Tx, id string) (lockedOrder, error) {
	var (
		status, verification string
		reason               *string
	)
	err := tx.QueryRow(ctx,
		`SELECT status, verification_status, rejection_reason FROM orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status, &verification, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockedOrder{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return lockedOrder{}, storageErr("lock order", err)
	}

	lo := lockedOrder{
		status:       domain.Status(status),
		verification: domain.Verification{Status: domain.VerificationStatus(verification)},
	}
	if reason != nil {
		lo.verification.RejectionReason = *reason
	}
	return lo, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID string, items []domain.OrderItem) error {
	for i, it := range items {
		_, err := tx.Exec(ctx, insertItem,
			orderID,
			i,
			it.ProductRef,
			it.Name,
			it.Quantity,
			it.Price.String(),
			it.ImageRef,
		)
		if err != nil {
			logger.Warn("insert order item failed", "order_id", orderID, "position", i, "err", err)
			return storageErr("insert item", err)
		}
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, id string) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, storageErr("get order", err)
	}

	byOrder, err := loadItems(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = byOrder[id]
	return &o, nil
}

func loadItems(ctx context.Context, q querier, ids []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.Query(ctx, selectItems, ids)
	if err != nil {
		return nil, storageErr("load items", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.OrderItem, len(ids))
	for rows.Next() {
		var (
			it    domain.OrderItem
			price string
		)
		if err := rows.Scan(&it.OrderID, &it.ProductRef, &it.Name, &it.Quantity, &price, &it.ImageRef); err != nil {
			return nil, storageErr("scan item", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, storageErr("parse item price", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate items", err)
	}
	return out, nil
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate orders", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                            domain.Order
		status, method, verification string
		total                        string
		reason                       *string
	)
	err := row.Scan(
		&o.ID,
		&o.Date,
		&status,
		&total,
		&o.PaymentConfirmationImage,
		&method,
		&verification,
		&reason,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.ShippingAddress,
		&o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	if o.Total, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentVerificationStatus = domain.VerificationStatus(verification)
	if reason != nil {
		o.RejectionReason = *reason
	}
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
