package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"goodsale-pos/config"
	"goodsale-pos/internal/promptpay"
	"goodsale-pos/internal/qrimage"
	"goodsale-pos/internal/status"
	"goodsale-pos/models"
	"goodsale-pos/monitoring"
	"goodsale-pos/utils"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	bankNotificationChannel = "bank-payment-notifications"
	paymentMethodPromptPay  = "promptpay_qr"
)

type PaymentService struct {
	Redis    *redis.Client
	PubNub   *pubnub.PubNub
	app      core.App
	merchant promptpay.Merchant
	qr       *qrimage.Generator
	monitor  *monitoring.Monitor
	cfg      *config.Config

	// seams for tests
	newID func() string
	now   func() time.Time
}

func NewPaymentService(redisClient *redis.Client, pn *pubnub.PubNub, app core.App, monitor *monitoring.Monitor, cfg *config.Config) *PaymentService {
	service := &PaymentService{
		Redis:  redisClient,
		PubNub: pn,
		app:    app,
		merchant: promptpay.Merchant{
			ID:   cfg.PromptPayID,
			Name: cfg.MerchantName,
		},
		qr:      qrimage.NewGenerator(cfg.QRSize),
		monitor: monitor,
		cfg:     cfg,
		newID:   uuid.NewString,
		now:     time.Now,
	}

	go service.SubscribeToPaymentNotifications()

	return service
}

type GenerateQRRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	OrderID   string          `json:"order_id"`
	StoreName string          `json:"store_name"`
}

type QRResult struct {
	PaymentID    string          `json:"payment_id"`
	QRCodeBase64 string          `json:"qr_code_base64"`
	Amount       decimal.Decimal `json:"amount"`
	Payload      string          `json:"payload"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// GeneratePromptPayQR builds the PromptPay payload for the request, renders
// it as a QR image and opens a pending payment session in Redis with the
// configured expiry.
func (s *PaymentService) GeneratePromptPayQR(ctx context.Context, req GenerateQRRequest) (*QRResult, error) {
	if !req.Amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}

	started := s.now()

	ref1 := req.OrderID
	if ref1 == "" {
		code, err := utils.GenerateCode(4)
		if err != nil {
			return nil, fmt.Errorf("generate payment reference: %w", err)
		}
		ref1 = "POS-" + code
	}

	storeName := req.StoreName
	if storeName == "" {
		storeName = s.merchant.Name
	}
	ref2 := truncateRunes(storeName, 10)

	payload := s.merchant.Payload(req.Amount, ref1, ref2)

	qrBase64, err := s.qr.GenerateDataURI(payload)
	if err != nil {
		s.trackOperation("generate", "error")
		return nil, fmt.Errorf("render payment qr: %w", err)
	}

	paymentID := s.newID()
	createdAt := s.now()
	expiresAt := createdAt.Add(s.cfg.PaymentTimeout)

	key := paymentKey(paymentID)
	s.Redis.HSet(ctx, key,
		"payment_id", paymentID,
		"order_id", req.OrderID,
		"amount", req.Amount.String(),
		"ref1", ref1,
		"ref2", ref2,
		"payload", payload,
		"status", models.PaymentStatusPending,
		"method", paymentMethodPromptPay,
		"created_at", createdAt.Unix(),
		"expires_at", expiresAt.Unix(),
	)
	s.Redis.Expire(ctx, key, s.cfg.PaymentTimeout)

	s.trackOperation("generate", "success")
	if s.monitor != nil {
		s.monitor.TrackQRGeneration(s.now().Sub(started))
	}

	return &QRResult{
		PaymentID:    paymentID,
		QRCodeBase64: qrBase64,
		Amount:       req.Amount,
		Payload:      payload,
		ExpiresAt:    expiresAt,
	}, nil
}

// GetPayment loads one payment session. Pending sessions past their expiry
// are swept lazily here, so callers never observe a stale "pending".
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	data := s.Redis.HGetAll(ctx, paymentKey(paymentID)).Val()
	if len(data) == 0 {
		return nil, status.ErrPaymentNotFound
	}

	payment := paymentFromHash(paymentID, data)
	if payment.Expired(s.now()) {
		s.Redis.HSet(ctx, paymentKey(paymentID), "status", models.PaymentStatusExpired)
		payment.Status = models.PaymentStatusExpired
		s.trackOperation("expire", "lazy")
	}

	return payment, nil
}

// VerifyPayment marks a pending payment completed, optionally storing the
// uploaded transfer slip alongside it. In production the confirmation
// normally arrives on the bank notification channel instead; this path covers
// customers paying by slip.
func (s *PaymentService) VerifyPayment(ctx context.Context, paymentID, slipImageData string) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case models.PaymentStatusCompleted:
		return nil, status.ErrPaymentCompleted
	case models.PaymentStatusExpired, models.PaymentStatusCancelled:
		return nil, status.ErrPaymentExpired
	}

	if slipImageData != "" {
		slipFile, err := s.saveSlipImage(paymentID, slipImageData)
		if err != nil {
			return nil, fmt.Errorf("save payment slip: %w", err)
		}
		payment.SlipFile = slipFile
		s.Redis.HSet(ctx, paymentKey(paymentID), "slip_file", slipFile)
	}

	s.completePayment(ctx, payment, "")

	return payment, nil
}

// CancelPayment cancels a payment that has not completed yet.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if !payment.Cancellable() {
		return nil, status.ErrPaymentCompleted
	}

	cancelledAt := s.now()
	payment.Status = models.PaymentStatusCancelled
	payment.CancelledAt = &cancelledAt

	s.Redis.HSet(ctx, paymentKey(paymentID),
		"status", models.PaymentStatusCancelled,
		"cancelled_at", cancelledAt.Unix(),
	)

	s.updateStoredStatus(ctx, paymentID, models.PaymentStatusCancelled)
	s.trackOperation("cancel", "success")

	return payment, nil
}

// CleanupExpiredPayments periodically sweeps pending sessions whose expiry
// passed, so their status flips to expired before the Redis TTL evicts them.
func (s *PaymentService) CleanupExpiredPayments(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired := s.sweepExpired(ctx)
			if expired > 0 {
				log.Printf("Marked %d payments as expired", expired)
			}
		case <-ctx.Done():
			log.Println("Stopping payment cleanup loop")
			return
		}
	}
}

func (s *PaymentService) sweepExpired(ctx context.Context) int {
	keys, err := s.Redis.Keys(ctx, "payment:*").Result()
	if err != nil {
		log.Printf("Error listing payment sessions: %v", err)
		return 0
	}

	expired := 0
	for _, key := range keys {
		data := s.Redis.HGetAll(ctx, key).Val()
		if len(data) == 0 {
			continue
		}

		payment := paymentFromHash(strings.TrimPrefix(key, "payment:"), data)
		if payment.Expired(s.now()) {
			s.Redis.HSet(ctx, key, "status", models.PaymentStatusExpired)
			s.trackOperation("expire", "sweep")
			expired++
		}
	}

	return expired
}

// SubscribeToPaymentNotifications listens on the bank notification channel
// and completes the matching payment session when a confirmation arrives.
func (s *PaymentService) SubscribeToPaymentNotifications() {
	listener := pubnub.NewListener()

	s.PubNub.AddListener(listener)
	s.PubNub.Subscribe().
		Channels([]string{bankNotificationChannel}).
		Execute()

	for message := range listener.Message {
		go s.handlePaymentNotification(message)
	}
}

func (s *PaymentService) handlePaymentNotification(message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	var notification models.PaymentNotification
	jsonData, _ := json.Marshal(data)
	if err := json.Unmarshal(jsonData, &notification); err != nil {
		log.Printf("Error parsing payment notification: %v", err)
		return
	}

	if notification.Status != "success" {
		return
	}

	ctx := context.Background()

	payment, err := s.GetPayment(ctx, notification.PaymentID)
	if err != nil {
		log.Printf("Payment notification for unknown payment %s: %v", notification.PaymentID, err)
		return
	}
	if payment.Status != models.PaymentStatusPending {
		return
	}

	s.completePayment(ctx, payment, notification.TransactionID)
}

// SimulatePaymentNotification publishes a fake bank confirmation, used by the
// development-only test endpoint.
func (s *PaymentService) SimulatePaymentNotification(paymentID, result string) {
	s.PubNub.Publish().
		Channel(bankNotificationChannel).
		Message(map[string]any{"payment_id": paymentID, "status": result}).
		Execute()
}

func (s *PaymentService) completePayment(ctx context.Context, payment *models.Payment, transactionID string) {
	verifiedAt := s.now()
	payment.Status = models.PaymentStatusCompleted
	payment.VerifiedAt = &verifiedAt

	s.Redis.HSet(ctx, paymentKey(payment.ID),
		"status", models.PaymentStatusCompleted,
		"verified_at", verifiedAt.Unix(),
	)

	s.persistPayment(ctx, payment)
	s.trackOperation("complete", "success")

	if s.PubNub == nil {
		return
	}

	channel := fmt.Sprintf("payment-%s", payment.ID)
	s.PubNub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":           "payment_success",
			"payment_id":     payment.ID,
			"transaction_id": transactionID,
			"amount":         payment.Amount.String(),
		}).
		Execute()
}

// persistPayment writes the finished payment into the payments collection so
// it survives the Redis TTL and feeds reporting.
func (s *PaymentService) persistPayment(ctx context.Context, payment *models.Payment) {
	if s.app == nil {
		return
	}

	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		log.Printf("Error finding payments collection: %v", err)
		return
	}

	record := core.NewRecord(collection)
	record.Set("payment_id", payment.ID)
	record.Set("order_id", payment.OrderID)
	record.Set("amount", payment.Amount.InexactFloat64())
	record.Set("ref1", payment.Ref1)
	record.Set("ref2", payment.Ref2)
	record.Set("payload", payment.Payload)
	record.Set("status", payment.Status)
	record.Set("method", payment.Method)
	record.Set("slip_file", payment.SlipFile)
	if payment.VerifiedAt != nil {
		record.Set("verified_at", *payment.VerifiedAt)
	}

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		log.Printf("Error saving payment record %s: %v", payment.ID, err)
	}
}

func (s *PaymentService) updateStoredStatus(ctx context.Context, paymentID, newStatus string) {
	if s.app == nil {
		return
	}

	records, err := s.app.FindRecordsByFilter(
		"payments",
		"payment_id = {:paymentId}",
		"",
		1,
		0,
		dbx.Params{"paymentId": paymentID},
	)
	if err != nil || len(records) == 0 {
		return
	}

	record := records[0]
	record.Set("status", newStatus)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		log.Printf("Error updating payment record %s: %v", paymentID, err)
	}
}

func (s *PaymentService) saveSlipImage(paymentID, imageData string) (string, error) {
	// Frontends send data URIs; strip the header before decoding.
	if idx := strings.Index(imageData, ","); idx >= 0 {
		imageData = imageData[idx+1:]
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return "", fmt.Errorf("decode slip image: %w", err)
	}

	if err := os.MkdirAll(s.cfg.SlipDir, 0o755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("slip_%s_%s.jpg", paymentID, s.now().Format("20060102_150405"))
	path := filepath.Join(s.cfg.SlipDir, filename)
	if err := os.WriteFile(path, imageBytes, 0o644); err != nil {
		return "", err
	}

	log.Printf("Payment slip saved: %s", path)
	return filename, nil
}

func (s *PaymentService) trackOperation(operation, result string) {
	if s.monitor != nil {
		s.monitor.TrackPaymentOperation(operation, result)
	}
}

func paymentKey(paymentID string) string {
	return fmt.Sprintf("payment:%s", paymentID)
}

func paymentFromHash(paymentID string, data map[string]string) *models.Payment {
	amount, err := decimal.NewFromString(data["amount"])
	if err != nil {
		amount = decimal.Zero
	}

	payment := &models.Payment{
		ID:       paymentID,
		OrderID:  data["order_id"],
		Amount:   amount,
		Ref1:     data["ref1"],
		Ref2:     data["ref2"],
		Payload:  data["payload"],
		Status:   data["status"],
		Method:   data["method"],
		SlipFile: data["slip_file"],
	}

	if v, err := strconv.ParseInt(data["created_at"], 10, 64); err == nil {
		payment.CreatedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(data["expires_at"], 10, 64); err == nil {
		payment.ExpiresAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(data["verified_at"], 10, 64); err == nil {
		t := time.Unix(v, 0)
		payment.VerifiedAt = &t
	}
	if v, err := strconv.ParseInt(data["cancelled_at"], 10, 64); err == nil {
		t := time.Unix(v, 0)
		payment.CancelledAt = &t
	}

	return payment
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
