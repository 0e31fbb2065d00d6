package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/services"
	"github.com/spf13/viper"
)

// WebhookHandler receives asynchronous checkout confirmations from the
// payment gateway. Delivery is at-least-once, so everything downstream
// is idempotent; the handler itself only authenticates and decodes.
type WebhookHandler struct {
	payments  *services.PaymentService
	validator *services.ValidationHelper
	secret    string
}

func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		payments:  payments,
		validator: services.NewValidationHelper(),
		secret:    viper.GetString("gateway.webhook_secret"),
	}
}

// HandleCheckoutEvent processes a gateway checkout notification.
// @Summary Gateway checkout webhook
// @Description Receive checkout confirmations from the payment gateway
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared webhook secret"
// @Param event body models.CheckoutEvent true "Checkout event"
// @Success 200 {object} object{received=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /webhooks/gateway/checkout [post]
func (h *WebhookHandler) HandleCheckoutEvent(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" || subtle.ConstantTimeCompare(
		[]byte(r.Header.Get("X-Webhook-Secret")), []byte(h.secret)) != 1 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var event models.CheckoutEvent

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&event); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&event); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var err error
	switch event.Status {
	case "succeeded":
		err = h.payments.ConfirmCheckout(r.Context(), event.GatewayTransactionID, event.Amount, event.Currency)
	case "failed":
		err = h.payments.FailCheckout(r.Context(), event.GatewayTransactionID)
	default:
		log.Printf("[WEBHOOK] Ignoring checkout %s with status %q", event.GatewayTransactionID, event.Status)
	}

	// Reconciliation errors get a 500 so the gateway redelivers.
	if err != nil {
		log.Printf("[WEBHOOK] Reconciliation failed for %s: %v", event.GatewayTransactionID, err)
		services.SendErrorResponse(w, "Reconciliation failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"received": true})
}
