package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v78/webhook"

	"rentalshop-backend/internal/checkout"
	"rentalshop-backend/internal/logger"
	"rentalshop-backend/internal/repository"
	whproc "rentalshop-backend/internal/webhook"
)

const maxWebhookBody = 1 << 20 // Stripe events are small; cap the body read

// Handler exposes the storefront's checkout and webhook endpoints.
type Handler struct {
	builder       *checkout.Builder
	processor     *whproc.Processor
	webhookSecret string
}

// NewHandler creates the HTTP handler set.
func NewHandler(builder *checkout.Builder, processor *whproc.Processor, webhookSecret string) *Handler {
	return &Handler{
		builder:       builder,
		processor:     processor,
		webhookSecret: webhookSecret,
	}
}

// Router builds the mux router over the handler set.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/shops/{shop}/checkout/session", h.HandleCreateCheckoutSession).Methods(http.MethodPost)
	r.HandleFunc("/shops/{shop}/webhooks/stripe", h.HandleStripeWebhook).Methods(http.MethodPost)
	return r
}

// HandleHealth reports process liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleCreateCheckoutSession prices the posted cart and returns the
// provider session reference. Checkout failures are the one user-visible
// error surface in this core.
func (h *Handler) HandleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	shop := mux.Vars(r)["shop"]

	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Shop = shop
	if req.ClientIP == "" {
		req.ClientIP = clientIP(r)
	}

	session, err := h.builder.CreateCheckoutSession(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, checkout.ErrInvalidReturnDate), errors.Is(err, checkout.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "unknown shop", http.StatusNotFound)
		return
	default:
		logger.Error("checkout session failed", "shop_id", shop, "error", err)
		http.Error(w, "checkout session failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// HandleStripeWebhook verifies the provider signature and applies the event.
// Handler failures return 500 so the provider redelivers; every handler is
// idempotent on business keys, so redelivery is safe.
func (h *Handler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	shop := mux.Vars(r)["shop"]

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		logger.Warn("webhook signature verification failed", "shop_id", shop, "error", err)
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	if err := h.processor.Handle(r.Context(), shop, event); err != nil {
		if errors.Is(err, whproc.ErrMalformedEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("webhook processing failed", "shop_id", shop, "type", event.Type, "error", err)
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
