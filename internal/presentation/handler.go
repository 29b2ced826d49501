package presentation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/RaikyD/reptile-orders-service/internal/application"
	"github.com/RaikyD/reptile-orders-service/internal/domain"
	"github.com/RaikyD/reptile-orders-service/internal/presentation/helpers"
	"github.com/RaikyD/reptile-orders-service/internal/review"
	"github.com/RaikyD/reptile-orders-service/internal/storage"
	"github.com/go-chi/chi/v5"
)

// OrderStore is the order collection as the HTTP layer sees it: reads come
// from the cache, writes go through it so the cache reloads afterwards.
type OrderStore interface {
	List(ctx context.Context) ([]domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	Create(ctx context.Context, in application.CreateOrderInput) (*domain.Order, error)
	UpdateItems(ctx context.Context, id string, items []domain.OrderItem) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Order, error)
	UpdatePaymentVerification(ctx context.Context, id string, status domain.VerificationStatus, reason string) (*domain.Order, error)
	Delete(ctx context.Context, id string) error
}

type OrdersHandler struct {
	orders OrderStore
	proofs storage.ProofStore
}

func NewOrdersHandler(orders OrderStore, proofs storage.ProofStore) *OrdersHandler {
	if proofs == nil {
		proofs = storage.DisabledStore{}
	}
	return &OrdersHandler{orders: orders, proofs: proofs}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Delete("/", h.DeleteOrder)
			r.Put("/items", h.UpdateItems)
			r.Patch("/status", h.UpdateStatus)
			r.Patch("/payment-verification", h.UpdatePaymentVerification)
			r.Get("/review", h.Review)
		})
	})
}

type itemsRequest struct {
	Items []domain.OrderItem `json:"items"`
}

type statusRequest struct {
	Status domain.Status `json:"status"`
}

type verificationRequest struct {
	Status          domain.VerificationStatus `json:"status"`
	RejectionReason string                    `json:"rejectionReason"`
}

// CreateOrder accepts two content types:
// - application/json: the body is the order
// - multipart/form-data: "order" holds the order JSON, "payment_proof" an optional image
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	mediatype, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var in application.CreateOrderInput
	switch mediatype {
	case "application/json":
		if err := helpers.DecodeBody(w, r, &in); err != nil {
			helpers.WriteError(w, err)
			return
		}

	case "multipart/form-data":
		proof, err := readMultipartOrder(r.Body, params["boundary"], &in)
		if err != nil {
			helpers.WriteError(w, err)
			return
		}
		if proof != nil {
			// nothing reaches the bucket for an order that would be refused
			if err := in.Validate(); err != nil {
				helpers.WriteError(w, err)
				return
			}
			ref, err := h.proofs.SaveProof(r.Context(), proof.filename, proof.contentType,
				bytes.NewReader(proof.data), int64(len(proof.data)))
			if errors.Is(err, storage.ErrDisabled) {
				helpers.HttpError(w, http.StatusNotImplemented, "payment proof uploads are not enabled")
				return
			}
			if err != nil {
				helpers.WriteError(w, err)
				return
			}
			in.PaymentConfirmationImage = ref
		}

	default:
		helpers.HttpError(w, http.StatusUnsupportedMediaType, "unsupported content-type")
		return
	}

	o, err := h.orders.Create(r.Context(), in)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if err := helpers.DecodeBody(w, r, &req); err != nil {
		helpers.WriteError(w, err)
		return
	}
	o, err := h.orders.UpdateItems(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := helpers.DecodeBody(w, r, &req); err != nil {
		helpers.WriteError(w, err)
		return
	}
	if req.Status == "" {
		helpers.HttpError(w, http.StatusBadRequest, "status is required")
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, o)
}

// UpdatePaymentVerification runs the decision through a review session, so an
// accepted payment cannot be accepted again and a rejection carries a reason.
func (h *OrdersHandler) UpdatePaymentVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := helpers.DecodeBody(w, r, &req); err != nil {
		helpers.WriteError(w, err)
		return
	}
	if err := domain.CheckVerificationRequest(req.Status, req.RejectionReason); err != nil {
		helpers.WriteError(w, err)
		return
	}

	s, err := h.session(r)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}

	switch req.Status {
	case domain.VerificationAccepted:
		err = s.Accept(r.Context())
	case domain.VerificationRejected:
		if err = s.BeginReject(); err == nil {
			s.SetReason(req.RejectionReason)
			err = s.SubmitReject(r.Context())
		}
	}
	if err != nil {
		helpers.WriteError(w, err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, s.Order())
}

func (h *OrdersHandler) Review(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		helpers.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, s.View())
}

func (h *OrdersHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		helpers.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) session(r *http.Request) (*review.Session, error) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return review.NewSession(h.orders, *o), nil
}

type proofFile struct {
	filename    string
	contentType string
	data        []byte
}

func readMultipartOrder(body io.Reader, boundary string, in *application.CreateOrderInput) (*proofFile, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: multipart boundary is missing", domain.ErrValidation)
	}

	var (
		proof    *proofFile
		gotOrder bool
	)
	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed multipart body: %w", domain.ErrValidation, err)
		}

		switch part.FormName() {
		case "order":
			err = helpers.DecodeJSON(io.LimitReader(part, helpers.MaxBodyBytes), in)
			if err != nil && !errors.Is(err, domain.ErrValidation) {
				err = fmt.Errorf("%w: invalid order JSON: %w", domain.ErrValidation, err)
			}
			gotOrder = true
		case "payment_proof":
			proof, err = readProof(part)
		}
		_ = part.Close()
		if err != nil {
			return nil, err
		}
	}

	if !gotOrder {
		return nil, fmt.Errorf("%w: multipart field \"order\" is required", domain.ErrValidation)
	}
	return proof, nil
}

func readProof(part *multipart.Part) (*proofFile, error) {
	data, err := io.ReadAll(io.LimitReader(part, storage.MaxProofSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading payment proof: %w", domain.ErrValidation, err)
	}
	if len(data) > storage.MaxProofSize {
		return nil, fmt.Errorf("%w: payment proof exceeds %d bytes", domain.ErrValidation, storage.MaxProofSize)
	}

	ct := part.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = http.DetectContentType(data)
	}
	return &proofFile{filename: part.FileName(), contentType: ct, data: data}, nil
}
