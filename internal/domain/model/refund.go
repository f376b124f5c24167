package model

import (
	"strings"
	"time"

	"nexus-billing/internal/domain"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"    // requested by the user
	RefundStatusApproved   RefundStatus = "approved"   // admin approved, gateway call not yet recorded
	RefundStatusRejected   RefundStatus = "rejected"   // terminal
	RefundStatusProcessing RefundStatus = "processing" // gateway accepted the refund
	RefundStatusSucceeded  RefundStatus = "succeeded"  // terminal
	RefundStatusFailed     RefundStatus = "failed"     // terminal
)

// ActiveRefundStatuses block a new request for the same payment.
var ActiveRefundStatuses = []RefundStatus{
	RefundStatusPending, RefundStatusApproved, RefundStatusProcessing, RefundStatusSucceeded,
}

// AdminRefundTargets are the statuses accepted by the admin decision endpoint.
var AdminRefundTargets = []RefundStatus{
	RefundStatusApproved, RefundStatusRejected, RefundStatusProcessing, RefundStatusSucceeded, RefundStatusFailed,
}

func RefundStatuses() []RefundStatus {
	return []RefundStatus{
		RefundStatusPending, RefundStatusApproved, RefundStatusRejected,
		RefundStatusProcessing, RefundStatusSucceeded, RefundStatusFailed,
	}
}

func (s RefundStatus) Valid() bool {
	for _, v := range RefundStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

func (s RefundStatus) Active() bool {
	for _, v := range ActiveRefundStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s RefundStatus) Terminal() bool {
	return s == RefundStatusSucceeded || s == RefundStatusFailed || s == RefundStatusRejected
}

// AdminCanSet reports whether an admin decision may move a refund from s to target.
// Pending accepts any decision; processing only accepts a final resolution.
func (s RefundStatus) AdminCanSet(target RefundStatus) bool {
	switch s {
	case RefundStatusPending:
		return target != RefundStatusPending
	case RefundStatusProcessing:
		return target == RefundStatusSucceeded || target == RefundStatusFailed
	default:
		return false
	}
}

// ConfirmedBy records who declared a refund succeeded.
type ConfirmedBy string

const (
	ConfirmedByNone    ConfirmedBy = ""
	ConfirmedByGateway ConfirmedBy = "gateway" // webhook or status poll
	ConfirmedByLocal   ConfirmedBy = "local"   // no gateway linkage, money movement unverified
	ConfirmedByAdmin   ConfirmedBy = "admin"   // manual resolution
)

// Notes attached to local-only refunds.
const (
	NoteNoPaymentIntent = "No gateway payment intent available - refund processed locally"
	NoteSessionLookup   = "Checkout session lookup failed - refund processed locally"
	NoteNoGatewayLink   = "No gateway linkage available - refund processed locally"
)

type AdminApproval struct {
	Approved    *bool      `json:"approved"`
	ApprovedBy  string     `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
}

// Refund is a request to return all or part of a payment.
type Refund struct {
	ID           string        `json:"id"`
	PaymentID    string        `json:"paymentId"`
	UserID       string        `json:"userId"`
	ServiceID    int64         `json:"serviceId"`
	Reason       string        `json:"refundReason"`
	Amount       int64         `json:"amount"` // minor units, never above the payment amount
	Currency     string        `json:"currency"`
	ExternalID   *string       `json:"refundId,omitempty"` // gateway refund id
	Status       RefundStatus  `json:"status"`
	StatusReason string        `json:"statusReason,omitempty"`
	Approval     AdminApproval `json:"adminApproval"`
	ConfirmedBy  ConfirmedBy   `json:"confirmedBy,omitempty"`
	ServiceTitle string        `json:"serviceTitle"`
	RequestedAt  time.Time     `json:"requestedAt"`
	ProcessedAt  *time.Time    `json:"processedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// NewRefund builds a pending refund for p. A zero amount means the full payment amount.
func NewRefund(p *Payment, userID, reason string, amount int64) (*Refund, error) {
	reason = strings.TrimSpace(reason)
	if p == nil || userID == "" || reason == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount == 0 {
		amount = p.Amount
	}
	if amount < 0 || amount > p.Amount {
		return nil, domain.ErrInvalidArgument
	}
	title := p.Service.Title
	if title == "" {
		title = "Service"
	}
	now := time.Now().UTC()
	return &Refund{
		ID:           uuid.NewString(),
		PaymentID:    p.ID,
		UserID:       userID,
		ServiceID:    p.ServiceID,
		Reason:       reason,
		Amount:       amount,
		Currency:     p.Currency,
		Status:       RefundStatusPending,
		ServiceTitle: title,
		RequestedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (r *Refund) HasExternalID() bool {
	return r.ExternalID != nil && *r.ExternalID != ""
}

// MarkSucceeded moves the refund to succeeded and stamps who confirmed it.
func (r *Refund) MarkSucceeded(by ConfirmedBy, at time.Time) {
	r.Status = RefundStatusSucceeded
	r.ConfirmedBy = by
	r.ProcessedAt = &at
	r.UpdatedAt = at
}

func (r *Refund) MarkFailed(at time.Time) {
	r.Status = RefundStatusFailed
	r.ProcessedAt = &at
	r.UpdatedAt = at
}

// Decide records an admin decision on the approval sub-record.
func (r *Refund) Decide(target RefundStatus, adminID, notes string, at time.Time) {
	var approved *bool
	switch target {
	case RefundStatusApproved, RefundStatusSucceeded:
		v := true
		approved = &v
	case RefundStatusRejected:
		v := false
		approved = &v
	}
	r.Approval = AdminApproval{Approved: approved, ApprovedBy: adminID, ApprovedAt: &at, ReviewNotes: notes}
	r.StatusReason = notes
	r.UpdatedAt = at
}

// GatewayRefundStatus is the refund state reported by the gateway.
type GatewayRefundStatus string

const (
	GatewayRefundPending   GatewayRefundStatus = "pending"
	GatewayRefundSucceeded GatewayRefundStatus = "succeeded"
	GatewayRefundFailed    GatewayRefundStatus = "failed"
	GatewayRefundCanceled  GatewayRefundStatus = "canceled"
)

type RefundFilter struct {
	UserID string
	Status RefundStatus // empty means all
	Page   int
	Limit  int
}

// RefundCursor marks the last refund of a keyset page. Pages are ordered by
// creation time, then id.
type RefundCursor struct {
	CreatedAt time.Time
	ID        string
}

// After reports whether r sorts strictly after the cursor.
func (c RefundCursor) After(r *Refund) bool {
	if !r.CreatedAt.Equal(c.CreatedAt) {
		return r.CreatedAt.After(c.CreatedAt)
	}
	return r.ID > c.ID
}

// CursorOf returns the cursor positioned on r.
func CursorOf(r *Refund) *RefundCursor {
	return &RefundCursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

type RefundStatusStat struct {
	Status      RefundStatus `json:"status"`
	Count       int          `json:"count"`
	TotalAmount int64        `json:"totalAmount"`
}

type RefundStats struct {
	StatusBreakdown   []RefundStatusStat `json:"statusBreakdown"`
	TotalRequests     int                `json:"totalRequests"`
	SuccessfulRefunds int                `json:"successfulRefunds"`
	SuccessRate       float64            `json:"successRate"`
}
