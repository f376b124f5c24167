package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type PurchaseItemType string

const (
	ItemService      PurchaseItemType = "service"
	ItemConsultation PurchaseItemType = "consultation"
	ItemProduct      PurchaseItemType = "product"
	ItemWebinar      PurchaseItemType = "webinar"
)

type PurchaseStatus string

const (
	PurchaseConfirmed PurchaseStatus = "confirmed"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseCancelled PurchaseStatus = "cancelled"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// Purchase records what a succeeded payment entitles the user to.
// There is at most one purchase per (payment, item type, item id).
type Purchase struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	PaymentID    string           `json:"paymentId"`
	ItemType     PurchaseItemType `json:"itemType"`
	ItemID       string           `json:"itemId"`
	Title        string           `json:"title"`
	Price        int64            `json:"price"` // minor units per item
	Quantity     int              `json:"quantity"`
	Status       PurchaseStatus   `json:"status"`
	RefundAmount int64            `json:"refundAmount,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (pu *Purchase) Revenue() int64 { return pu.Price * int64(pu.Quantity) }

// PurchasesForPayment derives the purchase rows of a succeeded payment.
func PurchasesForPayment(p *Payment) []*Purchase {
	now := time.Now().UTC()
	return []*Purchase{{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		PaymentID: p.ID,
		ItemType:  ItemService,
		ItemID:    strconv.FormatInt(p.ServiceID, 10),
		Title:     p.Service.Title,
		Price:     p.Amount,
		Quantity:  1,
		Status:    PurchaseConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}}
}
