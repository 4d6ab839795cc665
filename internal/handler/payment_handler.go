package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"settlement-service/internal/domain"
	"settlement-service/internal/provider"
	"settlement-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	settlementUC *usecase.SettlementUsecase
	withdrawUC   *usecase.WithdrawUsecase
	catalogUC    *usecase.CatalogUsecase
	logger       *zap.Logger
}

func NewPaymentHandler(
	settlementUC *usecase.SettlementUsecase,
	withdrawUC *usecase.WithdrawUsecase,
	catalogUC *usecase.CatalogUsecase,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		settlementUC: settlementUC,
		withdrawUC:   withdrawUC,
		catalogUC:    catalogUC,
		logger:       logger,
	}
}

// HandleInitiateRidePayment starts a gateway collection for a shipment.
func (h *PaymentHandler) HandleInitiateRidePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.RidePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	txn, err := h.settlementUC.InitiateRidePayment(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrShipmentNotFound):
			h.sendError(w, http.StatusNotFound, "shipment not found", err)
		case provider.IsTimeout(err):
			h.sendError(w, http.StatusGatewayTimeout, "gateway timed out, retry verification later", err)
		default:
			h.sendError(w, http.StatusBadGateway, "failed to initiate payment", err)
		}
		return
	}

	h.sendSuccess(w, http.StatusCreated, "payment initiated", map[string]interface{}{
		"transaction": txn,
	})
}

// HandleVerifyPayment queries the gateway for the charge and settles it when
// the gateway reports success. Safe to call any number of times.
func (h *PaymentHandler) HandleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chargeID := chi.URLParam(r, "charge_id")

	status, applied, err := h.settlementUC.VerifyAndConfirm(ctx, chargeID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTransactionNotFound):
			h.sendError(w, http.StatusNotFound, "transaction not found", err)
		case provider.IsTimeout(err):
			h.sendError(w, http.StatusGatewayTimeout, "gateway timed out", err)
		default:
			h.sendError(w, http.StatusBadGateway, "verification failed", err)
		}
		return
	}

	h.sendSuccess(w, http.StatusOK, "verification completed", map[string]interface{}{
		"charge_id": chargeID,
		"status":    status,
		"settled":   applied,
	})
}

// HandleWithdraw runs the debit-then-payout flow. A rejected payout comes
// back with refund confirmation so the caller can tell the user the funds
// were restored.
func (h *PaymentHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.withdrawUC.Request(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			h.sendError(w, http.StatusUnprocessableEntity, "insufficient funds", err)
		case result != nil && result.Pending:
			h.sendJSON(w, http.StatusAccepted, map[string]interface{}{
				"success":     false,
				"message":     "payout outcome pending, will be reconciled",
				"transaction": result.Transaction,
			})
		case result != nil && result.Refunded:
			h.sendJSON(w, http.StatusBadGateway, map[string]interface{}{
				"success":     false,
				"message":     "payout failed, funds refunded to wallet",
				"refunded":    true,
				"transaction": result.Transaction,
				"error":       result.GatewayMessage,
			})
		default:
			h.sendError(w, http.StatusInternalServerError, "withdrawal failed", err)
		}
		return
	}

	h.sendSuccess(w, http.StatusOK, "withdrawal completed", map[string]interface{}{
		"transaction": result.Transaction,
		"payout":      result.Payout,
	})
}

// HandleGetWallet returns the user's wallet balance. The wallet is created
// with a zero balance on first read, so this never 404s for a valid user.
func (h *PaymentHandler) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	wallet, err := h.withdrawUC.Wallet(r.Context(), userID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to load wallet", err)
		return
	}

	h.sendSuccess(w, http.StatusOK, "", map[string]interface{}{"wallet": wallet})
}

func (h *PaymentHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref := chi.URLParam(r, "ref")

	txn, err := h.settlementUC.GetTransaction(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			h.sendError(w, http.StatusNotFound, "transaction not found", err)
			return
		}
		h.sendError(w, http.StatusInternalServerError, "failed to load transaction", err)
		return
	}

	h.sendSuccess(w, http.StatusOK, "", map[string]interface{}{"transaction": txn})
}

func (h *PaymentHandler) HandleListOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := h.catalogUC.Operators(r.Context())
	if err != nil {
		h.sendError(w, http.StatusBadGateway, "failed to list operators", err)
		return
	}
	h.sendSuccess(w, http.StatusOK, "", map[string]interface{}{"operators": operators})
}

func (h *PaymentHandler) HandleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.catalogUC.Banks(r.Context())
	if err != nil {
		h.sendError(w, http.StatusBadGateway, "failed to list banks", err)
		return
	}
	h.sendSuccess(w, http.StatusOK, "", map[string]interface{}{"banks": banks})
}

func (h *PaymentHandler) HandlePlatformBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := h.catalogUC.PlatformBalance(r.Context())
	if err != nil {
		h.sendError(w, http.StatusBadGateway, "failed to read platform balance", err)
		return
	}
	h.sendSuccess(w, http.StatusOK, "", map[string]interface{}{"balances": balances})
}

func (h *PaymentHandler) sendSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	resp := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	if message != "" {
		resp["message"] = message
	}
	h.sendJSON(w, statusCode, resp)
}

func (h *PaymentHandler) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	h.logger.Warn("request failed",
		zap.Int("status", statusCode),
		zap.String("message", message),
		zap.Error(err))

	resp := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	h.sendJSON(w, statusCode, resp)
}

func (h *PaymentHandler) sendJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
