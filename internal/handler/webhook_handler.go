package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"settlement-service/internal/provider"

	"go.uber.org/zap"
)

// SettlementConfirmer finalizes a charge; implemented by the settlement
// usecase. Confirm must be idempotent per charge id.
type SettlementConfirmer interface {
	Confirm(ctx context.Context, chargeID string) (bool, error)
}

// WebhookHandler authenticates asynchronous gateway notifications and feeds
// successful charges into the settlement confirmation routine.
type WebhookHandler struct {
	settlementUC SettlementConfirmer
	secret       []byte
	logger       *zap.Logger
}

func NewWebhookHandler(settlementUC SettlementConfirmer, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		settlementUC: settlementUC,
		secret:       []byte(webhookSecret),
		logger:       logger,
	}
}

// webhookPayload tolerates the provider nesting charge_id/status either at
// the top level or under a data object.
type webhookPayload struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
	Data     *struct {
		ChargeID string `json:"charge_id"`
		Status   string `json:"status"`
	} `json:"data"`
}

func (p *webhookPayload) chargeID() string {
	if p.Data != nil && p.Data.ChargeID != "" {
		return p.Data.ChargeID
	}
	return p.ChargeID
}

func (p *webhookPayload) status() string {
	if p.Data != nil && p.Data.Status != "" {
		return p.Data.Status
	}
	return p.Status
}

// HandleGatewayWebhook verifies the HMAC signature over the exact raw body
// before anything is parsed. Missing server secret fails closed; once the
// signature checks out the endpoint always acknowledges with 200 so the
// provider does not retry already-processed notifications.
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if len(h.secret) == 0 {
		h.logger.Error("webhook secret not configured, rejecting notification")
		h.sendError(w, http.StatusInternalServerError, "webhook secret not configured")
		return
	}

	signature := r.Header.Get("Signature")
	if signature == "" {
		h.logger.Warn("webhook missing signature header",
			zap.String("remote_addr", r.RemoteAddr))
		h.sendError(w, http.StatusBadRequest, "missing signature header")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		h.sendError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		h.logger.Warn("webhook signature is not valid hex",
			zap.String("remote_addr", r.RemoteAddr))
		h.sendError(w, http.StatusForbidden, "invalid signature")
		return
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)

	// Comparing decoded bytes keeps the check constant-time and accepts
	// either hex casing from the provider.
	if !hmac.Equal(mac.Sum(nil), sigBytes) {
		h.logger.Warn("webhook signature mismatch",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("payload_size", len(body)))
		h.sendError(w, http.StatusForbidden, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("webhook body is not valid JSON", zap.Error(err))
		h.sendSuccess(w, "webhook received")
		return
	}

	chargeID := payload.chargeID()
	status := payload.status()

	h.logger.Info("gateway webhook received",
		zap.String("charge_id", chargeID),
		zap.String("status", status))

	if provider.NormalizeStatus(status) == provider.ChargeStatusSuccess {
		applied, err := h.settlementUC.Confirm(ctx, chargeID)
		if err != nil {
			// The signature was valid, so the provider gets a 200 either way;
			// failures here are for the logs and the reconciliation sweep.
			h.logger.Error("webhook confirmation failed",
				zap.String("charge_id", chargeID),
				zap.Error(err))
		} else if !applied {
			h.logger.Info("webhook for already-settled charge",
				zap.String("charge_id", chargeID))
		}
	}

	h.sendSuccess(w, "webhook processed")
}

func (h *WebhookHandler) sendSuccess(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
	})
}

func (h *WebhookHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
