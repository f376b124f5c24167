package postgres

import (
	"encoding/json"

	"github.com/samber/lo"

	"nexus-billing/internal/domain/model"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func toJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return []byte("{}")
	}
	return b
}

func fromJSONMap(b []byte) map[string]string {
	out := map[string]string{}
	if len(b) > 0 {
		_ = json.Unmarshal(b, &out)
	}
	return out
}

func paymentStatusStrings(in []model.PaymentStatus) []string {
	return lo.Map(in, func(s model.PaymentStatus, _ int) string { return string(s) })
}

func refundStatusStrings(in []model.RefundStatus) []string {
	return lo.Map(in, func(s model.RefundStatus, _ int) string { return string(s) })
}
