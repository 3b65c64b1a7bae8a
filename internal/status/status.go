package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("payment: amount must be greater than zero")
	ErrPaymentNotFound  = errors.New("payment: payment id not found")
	ErrPaymentExpired   = errors.New("payment: payment expired")
	ErrPaymentCompleted = errors.New("payment: cannot modify completed payment")
)

// Transaction is a confirmed payment notification received from the
// bank-notification channel.
type Transaction struct {
	PaymentID string          `json:"payment_id"`
	RefID     string          `json:"ref_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Payer     string          `json:"payer,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
