package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusExpired   = "expired"
)

type Payment struct {
	ID          string          `json:"payment_id"`
	OrderID     string          `json:"order_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Ref1        string          `json:"ref1,omitempty"`
	Ref2        string          `json:"ref2,omitempty"`
	Payload     string          `json:"payload"`
	Status      string          `json:"status"` // pending, completed, cancelled, expired
	Method      string          `json:"payment_method"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	SlipFile    string          `json:"slip_file,omitempty"`
}

// Expired reports whether a still-pending payment has passed its expiry
// timestamp. Completed and cancelled payments never expire retroactively.
func (p *Payment) Expired(now time.Time) bool {
	return p.Status == PaymentStatusPending && now.After(p.ExpiresAt)
}

// Cancellable reports whether the payment may still be cancelled.
func (p *Payment) Cancellable() bool {
	return p.Status != PaymentStatusCompleted
}

type PaymentNotification struct {
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}
