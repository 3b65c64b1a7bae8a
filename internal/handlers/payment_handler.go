package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"goodsale-pos/internal/services"
	"goodsale-pos/internal/status"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
	}
}

// GenerateQR - Create a PromptPay QR code and open a payment session
func (h *PaymentHandler) GenerateQR(e *core.RequestEvent) error {
	var req services.GenerateQRRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()

	result, err := h.paymentService.GeneratePromptPayQR(ctx, req)
	if err != nil {
		if errors.Is(err, status.ErrInvalidAmount) {
			return apis.NewBadRequestError("Amount must be greater than zero", nil)
		}
		slog.Error("h.paymentService.GeneratePromptPayQR()", "req", req, "error", err)
		return apis.NewInternalServerError("Cannot generate payment code", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

// GetPaymentDetails - Get payment details
func (h *PaymentHandler) GetPaymentDetails(e *core.RequestEvent) error {
	paymentID := e.Request.PathValue("paymentId")
	ctx := e.Request.Context()

	payment, err := h.paymentService.GetPayment(ctx, paymentID)
	if err != nil {
		return apis.NewNotFoundError("Payment not found", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    payment,
	})
}

// CheckPaymentStatus - Check payment status
func (h *PaymentHandler) CheckPaymentStatus(e *core.RequestEvent) error {
	paymentID := e.Request.PathValue("paymentId")
	ctx := e.Request.Context()

	payment, err := h.paymentService.GetPayment(ctx, paymentID)
	if err != nil {
		return apis.NewNotFoundError("Payment not found", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"payment_id": payment.ID,
		"status":     payment.Status,
		"expires_at": payment.ExpiresAt,
	})
}

// VerifyPayment - Confirm a pending payment, optionally with a transfer slip
func (h *PaymentHandler) VerifyPayment(e *core.RequestEvent) error {
	var req struct {
		PaymentID string `json:"payment_id"`
		SlipImage string `json:"slip_image"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.PaymentID == "" {
		return apis.NewBadRequestError("Missing payment_id", nil)
	}

	ctx := e.Request.Context()

	payment, err := h.paymentService.VerifyPayment(ctx, req.PaymentID, req.SlipImage)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrPaymentNotFound):
			return apis.NewNotFoundError("Payment not found", nil)
		case errors.Is(err, status.ErrPaymentExpired):
			return apis.NewBadRequestError("Payment expired", nil)
		case errors.Is(err, status.ErrPaymentCompleted):
			return apis.NewBadRequestError("Payment already completed", nil)
		}
		slog.Error("h.paymentService.VerifyPayment()", "paymentId", req.PaymentID, "error", err)
		return apis.NewInternalServerError("Payment verification failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    payment,
	})
}

// CancelPayment - Cancel a payment that has not completed
func (h *PaymentHandler) CancelPayment(e *core.RequestEvent) error {
	paymentID := e.Request.PathValue("paymentId")
	ctx := e.Request.Context()

	payment, err := h.paymentService.CancelPayment(ctx, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrPaymentNotFound):
			return apis.NewNotFoundError("Payment not found", nil)
		case errors.Is(err, status.ErrPaymentCompleted):
			return apis.NewBadRequestError("Cannot cancel completed payment", nil)
		}
		slog.Error("h.paymentService.CancelPayment()", "paymentId", paymentID, "error", err)
		return apis.NewInternalServerError("Payment cancellation failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    payment,
	})
}

// GetPaymentSummary - Aggregate today's persisted payments by status
func (h *PaymentHandler) GetPaymentSummary(e *core.RequestEvent) error {
	year, month, day := time.Now().UTC().Date()
	from := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)

	var rows []struct {
		Status string  `db:"status"`
		Total  int     `db:"total"`
		Amount float64 `db:"amount"`
	}

	err := h.app.DB().
		Select("status", "COUNT(*) AS total", "COALESCE(SUM(amount), 0) AS amount").
		From("payments").
		Where(dbx.NewExp("created >= {:from}", dbx.Params{"from": from.Format("2006-01-02 15:04:05.000Z")})).
		GroupBy("status").
		All(&rows)
	if err != nil {
		slog.Error("payment summary query failed", "error", err)
		return apis.NewInternalServerError("Cannot load payment summary", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"date":    from.Format("2006-01-02"),
		"data":    rows,
	})
}

// SimulatePayment - Simulate a bank confirmation (for testing)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	h.paymentService.SimulatePaymentNotification(req.PaymentID, req.Status)

	return e.JSON(http.StatusOK, map[string]any{"message": "Payment simulation sent"})
}
