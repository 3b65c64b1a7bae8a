package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"goodsale-pos/config"
	"goodsale-pos/internal/promptpay"
	"goodsale-pos/internal/qrimage"
	"goodsale-pos/internal/status"
	"goodsale-pos/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)

func setupTestPaymentService(t *testing.T) (*PaymentService, redismock.ClientMock) {
	t.Helper()

	db, redisMock := redismock.NewClientMock()

	cfg := &config.Config{
		PromptPayID:    "0123456789",
		MerchantName:   "GOOD SALE POS",
		QRSize:         128,
		SlipDir:        t.TempDir(),
		PaymentTimeout: 15 * time.Minute,
	}

	// Built directly so no notification subscription goroutine starts.
	service := &PaymentService{
		Redis: db,
		cfg:   cfg,
		merchant: promptpay.Merchant{
			ID:   cfg.PromptPayID,
			Name: cfg.MerchantName,
		},
		qr:    qrimage.NewGenerator(cfg.QRSize),
		newID: func() string { return "pay-123" },
		now:   func() time.Time { return testNow },
	}

	return service, redisMock
}

func pendingHash(amount string, expiresAt time.Time) map[string]string {
	return map[string]string{
		"payment_id": "pay-123",
		"order_id":   "ORD-1",
		"amount":     amount,
		"ref1":       "ORD-1",
		"ref2":       "GOOD SALE ",
		"payload":    "0002...",
		"status":     models.PaymentStatusPending,
		"method":     paymentMethodPromptPay,
		"created_at": strconv.FormatInt(testNow.Add(-time.Minute).Unix(), 10),
		"expires_at": strconv.FormatInt(expiresAt.Unix(), 10),
	}
}

func TestGeneratePromptPayQR_Success(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	amount := decimal.RequireFromString("100.50")
	payload := service.merchant.Payload(amount, "ORD-1", "GOOD SALE ")
	expiresAt := testNow.Add(15 * time.Minute)

	redisMock.ExpectHSet("payment:pay-123",
		"payment_id", "pay-123",
		"order_id", "ORD-1",
		"amount", amount.String(),
		"ref1", "ORD-1",
		"ref2", "GOOD SALE ",
		"payload", payload,
		"status", models.PaymentStatusPending,
		"method", paymentMethodPromptPay,
		"created_at", testNow.Unix(),
		"expires_at", expiresAt.Unix(),
	).SetVal(10)
	redisMock.ExpectExpire("payment:pay-123", 15*time.Minute).SetVal(true)

	result, err := service.GeneratePromptPayQR(context.Background(), GenerateQRRequest{
		Amount:  amount,
		OrderID: "ORD-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "pay-123", result.PaymentID)
	assert.Equal(t, payload, result.Payload)
	assert.Equal(t, expiresAt, result.ExpiresAt)
	assert.Contains(t, result.QRCodeBase64, "data:image/png;base64,")
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestGeneratePromptPayQR_RejectsNonPositiveAmount(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	for _, raw := range []string{"0", "-5.25"} {
		_, err := service.GeneratePromptPayQR(context.Background(), GenerateQRRequest{
			Amount: decimal.RequireFromString(raw),
		})
		assert.ErrorIs(t, err, status.ErrInvalidAmount)
	}

	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestGetPayment_NotFound(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	redisMock.ExpectHGetAll("payment:missing").SetVal(map[string]string{})

	_, err := service.GetPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, status.ErrPaymentNotFound)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestGetPayment_ParsesSession(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	expiresAt := testNow.Add(10 * time.Minute)
	redisMock.ExpectHGetAll("payment:pay-123").SetVal(pendingHash("49.9", expiresAt))

	payment, err := service.GetPayment(context.Background(), "pay-123")

	require.NoError(t, err)
	assert.Equal(t, "pay-123", payment.ID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("49.9")))
	assert.Equal(t, expiresAt.Unix(), payment.ExpiresAt.Unix())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestGetPayment_SweepsExpiredLazily(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	redisMock.ExpectHGetAll("payment:pay-123").SetVal(pendingHash("49.9", testNow.Add(-time.Minute)))
	redisMock.ExpectHSet("payment:pay-123", "status", models.PaymentStatusExpired).SetVal(0)

	payment, err := service.GetPayment(context.Background(), "pay-123")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, payment.Status)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestVerifyPayment_CompletesPendingSession(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	redisMock.ExpectHGetAll("payment:pay-123").SetVal(pendingHash("49.9", testNow.Add(10*time.Minute)))
	redisMock.ExpectHSet("payment:pay-123",
		"status", models.PaymentStatusCompleted,
		"verified_at", testNow.Unix(),
	).SetVal(0)

	payment, err := service.VerifyPayment(context.Background(), "pay-123", "")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.VerifiedAt)
	assert.Equal(t, testNow, *payment.VerifiedAt)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestVerifyPayment_SavesSlipImage(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	slip := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake-slip"))
	slipFile := fmt.Sprintf("slip_pay-123_%s.jpg", testNow.Format("20060102_150405"))

	redisMock.ExpectHGetAll("payment:pay-123").SetVal(pendingHash("49.9", testNow.Add(10*time.Minute)))
	redisMock.ExpectHSet("payment:pay-123", "slip_file", slipFile).SetVal(0)
	redisMock.ExpectHSet("payment:pay-123",
		"status", models.PaymentStatusCompleted,
		"verified_at", testNow.Unix(),
	).SetVal(0)

	payment, err := service.VerifyPayment(context.Background(), "pay-123", slip)

	require.NoError(t, err)
	assert.Equal(t, slipFile, payment.SlipFile)

	saved, err := os.ReadFile(filepath.Join(service.cfg.SlipDir, slipFile))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-slip"), saved)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestVerifyPayment_RejectsFinishedSessions(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	completed := pendingHash("49.9", testNow.Add(10*time.Minute))
	completed["status"] = models.PaymentStatusCompleted
	redisMock.ExpectHGetAll("payment:pay-123").SetVal(completed)

	_, err := service.VerifyPayment(context.Background(), "pay-123", "")
	assert.ErrorIs(t, err, status.ErrPaymentCompleted)

	expired := pendingHash("49.9", testNow.Add(10*time.Minute))
	expired["status"] = models.PaymentStatusExpired
	redisMock.ExpectHGetAll("payment:pay-123").SetVal(expired)

	_, err = service.VerifyPayment(context.Background(), "pay-123", "")
	assert.ErrorIs(t, err, status.ErrPaymentExpired)

	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCancelPayment_Success(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	redisMock.ExpectHGetAll("payment:pay-123").SetVal(pendingHash("49.9", testNow.Add(10*time.Minute)))
	redisMock.ExpectHSet("payment:pay-123",
		"status", models.PaymentStatusCancelled,
		"cancelled_at", testNow.Unix(),
	).SetVal(0)

	payment, err := service.CancelPayment(context.Background(), "pay-123")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, payment.Status)
	require.NotNil(t, payment.CancelledAt)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCancelPayment_RejectsCompleted(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	completed := pendingHash("49.9", testNow.Add(10*time.Minute))
	completed["status"] = models.PaymentStatusCompleted
	redisMock.ExpectHGetAll("payment:pay-123").SetVal(completed)

	_, err := service.CancelPayment(context.Background(), "pay-123")
	assert.ErrorIs(t, err, status.ErrPaymentCompleted)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestSweepExpired(t *testing.T) {
	service, redisMock := setupTestPaymentService(t)

	redisMock.ExpectKeys("payment:*").SetVal([]string{"payment:stale", "payment:fresh"})

	stale := pendingHash("10", testNow.Add(-time.Minute))
	stale["payment_id"] = "stale"
	redisMock.ExpectHGetAll("payment:stale").SetVal(stale)
	redisMock.ExpectHSet("payment:stale", "status", models.PaymentStatusExpired).SetVal(0)

	fresh := pendingHash("10", testNow.Add(10*time.Minute))
	fresh["payment_id"] = "fresh"
	redisMock.ExpectHGetAll("payment:fresh").SetVal(fresh)

	expired := service.sweepExpired(context.Background())

	assert.Equal(t, 1, expired)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestPaymentFromHash_TolerantOfBadAmount(t *testing.T) {
	payment := paymentFromHash("x", map[string]string{
		"amount": "not-a-number",
		"status": models.PaymentStatusPending,
	})

	assert.True(t, payment.Amount.IsZero())
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "GOOD SALE ", truncateRunes("GOOD SALE POS", 10))
	assert.Equal(t, "short", truncateRunes("short", 10))
	// rune-based, not byte-based
	assert.Equal(t, "ร้านกาแฟดี", truncateRunes("ร้านกาแฟดีใจ", 10))
}
