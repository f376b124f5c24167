package model

import (
	"strings"
	"time"

	"nexus-billing/internal/domain"

	"github.com/shopspring/decimal"
)

// Service is a purchasable catalog entry (consultation, visa package, ...).
// Price is kept as the display string shown on the site, e.g. "$1,299".
type Service struct {
	ServiceID  int64     `json:"serviceId"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Consultant string    `json:"consultant"`
	Duration   string    `json:"duration"`
	Price      string    `json:"price"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *Service) IsZero() bool { return s == nil || s.ServiceID == 0 }

// NewService validates and constructs a catalog entry.
func NewService(id int64, title, category, consultant, duration, price string) (*Service, error) {
	if id <= 0 || strings.TrimSpace(title) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := ParsePriceMinor(price); err != nil {
		return nil, err
	}
	return &Service{
		ServiceID:  id,
		Title:      title,
		Category:   category,
		Consultant: consultant,
		Duration:   duration,
		Price:      price,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// AmountMinor returns the price in cents.
func (s *Service) AmountMinor() (int64, error) { return ParsePriceMinor(s.Price) }

func (s *Service) Snapshot() ServiceSnapshot {
	return ServiceSnapshot{
		ServiceID:  s.ServiceID,
		Title:      s.Title,
		Category:   s.Category,
		Consultant: s.Consultant,
		Duration:   s.Duration,
		Price:      s.Price,
	}
}

// ParsePriceMinor converts a display price ("$999", "1,250.50") into minor units.
// Fractions below one cent are rounded half away from zero.
func ParsePriceMinor(price string) (int64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(price)
	if cleaned == "" {
		return 0, domain.ErrInvalidPrice
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || !d.IsPositive() {
		return 0, domain.ErrInvalidPrice
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
