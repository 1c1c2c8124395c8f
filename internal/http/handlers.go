package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	redisadapter "github.com/robertarktes/cinema-reservations/internal/adapters/redis"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/payments"
)

type Reservations interface {
	Create(ctx context.Context, p domain.Principal, kind domain.Kind, targetID int64) (domain.Reservation, error)
	Get(ctx context.Context, p domain.Principal, id string) (domain.Reservation, error)
	ToggleSeat(ctx context.Context, p domain.Principal, reservationID string, seatID int64, selected bool) error
	AdjustCartItem(ctx context.Context, p domain.Principal, reservationID string, itemID, variantID int64, increment bool) error
	Checkout(ctx context.Context, p domain.Principal, reservationID string) (domain.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID, method, details string) (domain.Reservation, error)
	PayWithWallet(ctx context.Context, p domain.Principal, paymentID string) (domain.Reservation, error)
	Cancel(ctx context.Context, p domain.Principal, reservationID string) error
	CompleteOrder(ctx context.Context, p domain.Principal, reservationID string) error
	SeatMap(ctx context.Context, showtimeID int64) ([]domain.SeatState, error)
	StockLevels(ctx context.Context, cinemaID int64) ([]domain.Inventory, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (<-chan redisadapter.Message, error)
}

// Check reports whether one dependency is ready to serve.
type Check func(ctx context.Context) error

type Handlers struct {
	svc       Reservations
	events    Subscriber
	checks    map[string]Check
	heartbeat time.Duration
}

func NewHandlers(svc Reservations, events Subscriber, checks map[string]Check) *Handlers {
	return &Handlers{svc: svc, events: events, checks: checks, heartbeat: 15 * time.Second}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch domain.Classify(err) {
	case domain.ClassValidation:
		status = http.StatusBadRequest
	case domain.ClassConflict:
		status = http.StatusConflict
	case domain.ClassNotFound:
		status = http.StatusNotFound
	case domain.ClassUnauthorized:
		status = http.StatusForbidden
	case domain.ClassTransient:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).WithError(err).Error("request failed")
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func principal(r *http.Request) domain.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(domain.ErrInvalidInput, "invalid %s", name)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	return nil
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     domain.Kind `json:"kind"`
		TargetID int64       `json:"target_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Create(r.Context(), principal(r), req.Kind, req.TargetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReservationView(res))
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (h *Handlers) SelectSeat(w http.ResponseWriter, r *http.Request) {
	h.toggleSeat(w, r, true)
}

func (h *Handlers) ReleaseSeat(w http.ResponseWriter, r *http.Request) {
	h.toggleSeat(w, r, false)
}

func (h *Handlers) toggleSeat(w http.ResponseWriter, r *http.Request, selected bool) {
	seatID, err := idParam(r, "seatID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.ToggleSeat(r.Context(), principal(r), chi.URLParam(r, "id"), seatID, selected); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AdjustCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID    int64 `json:"item_id"`
		VariantID int64 `json:"variant_id"`
		Delta     int   `json:"delta"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Delta != 1 && req.Delta != -1 {
		writeError(w, r, errors.Wrap(domain.ErrInvalidInput, "delta must be 1 or -1"))
		return
	}
	err := h.svc.AdjustCartItem(r.Context(), principal(r), chi.URLParam(r, "id"), req.ItemID, req.VariantID, req.Delta > 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.Checkout(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPaymentView(payment))
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CompleteOrder(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PayWithWallet(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.PayWithWallet(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

// PaymentCallback is called by the payment provider once a capture succeeds.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req payments.Captured
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.ConfirmPayment(r.Context(), req.PaymentID, req.Method, req.Details)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReservationView(res))
}

func (h *Handlers) SeatMap(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	seats, err := h.svc.SeatMap(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seats)
}

func (h *Handlers) StockLevels(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	levels, err := h.svc.StockLevels(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (h *Handlers) ShowtimeEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stream(w, r, domain.ShowtimeTopic(id))
}

func (h *Handlers) CinemaEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stream(w, r, domain.CinemaTopic(id))
}

// AccountEvents carries the caller's refresh requests.
func (h *Handlers) AccountEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, domain.AccountTopic(principal(r).AccountID))
}

func (h *Handlers) ReservationEvents(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.stream(w, r, domain.OrderTopic(res.ID))
}

// stream relays topic events as Server-Sent Events until the client leaves.
func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, topics ...string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.New("streaming unsupported"))
		return
	}
	msgs, err := h.events.Subscribe(r.Context(), topics...)
	if err != nil {
		loggerFrom(r.Context()).WithError(err).Warn("event subscription failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "events unavailable"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Name, m.Payload); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var failing []string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			loggerFrom(r.Context()).WithError(err).WithField("dependency", name).Warn("not ready")
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"failing": failing})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}
