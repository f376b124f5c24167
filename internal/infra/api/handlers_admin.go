package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/infra/sched"
)

type statusUpdate struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (s *Server) handleAdminPayments(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, 20)
	f := model.PaymentFilter{Page: page, Limit: limit}
	if st := strings.ToLower(r.URL.Query().Get("status")); st != "" && st != "all" {
		if !model.PaymentStatus(st).Valid() {
			s.writeError(w, r, domain.ErrInvalidStatus)
			return
		}
		f.Statuses = []model.PaymentStatus{model.PaymentStatus(st)}
	}
	res, err := s.payments.AdminList(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePaymentsByStatus(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, 20)
	res, err := s.payments.ByStatus(r.Context(), chi.URLParam(r, "status"), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdminPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.payments.AdminGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePaymentAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.payments.Analytics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handlePaymentOverride(w http.ResponseWriter, r *http.Request) {
	var req statusUpdate
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.payments.OverrideStatus(r.Context(), claimsFrom(r.Context()).Subject, chi.URLParam(r, "id"), req.Status, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdminRefunds(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, 100)
	f := model.RefundFilter{Page: page, Limit: limit}
	if st := strings.ToLower(r.URL.Query().Get("status")); st != "" && st != "all" {
		if !model.RefundStatus(st).Valid() {
			s.writeError(w, r, domain.ErrInvalidStatus)
			return
		}
		f.Status = model.RefundStatus(st)
	}
	res, err := s.refunds.AdminList(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefundStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.refunds.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAdminRefund(w http.ResponseWriter, r *http.Request) {
	ref, err := s.refunds.AdminGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleRefundDecision(w http.ResponseWriter, r *http.Request) {
	var req statusUpdate
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.refunds.Decide(r.Context(), claimsFrom(r.Context()).Subject, chi.URLParam(r, "id"), req.Status, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleRefundCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.refunds.CheckStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeMessage(w, http.StatusServiceUnavailable, "refund sweep is not configured")
		return
	}
	res, err := s.sweeper.RunOnce(r.Context())
	if errors.Is(err, sched.ErrSweepRunning) {
		writeMessage(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
