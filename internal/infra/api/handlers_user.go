package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexus-billing/internal/usecase"
)

type checkoutRequest struct {
	ServiceID  int64  `json:"serviceId" validate:"required,gt=0"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

type refundRequest struct {
	PaymentID    string `json:"paymentId" validate:"required"`
	RefundReason string `json:"refundReason" validate:"required,max=1000"`
	Amount       int64  `json:"amount" validate:"gte=0"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.payments.ListServices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c := claimsFrom(r.Context())
	res, err := s.payments.CreateCheckout(r.Context(), usecase.CheckoutInput{
		UserID:        c.Subject,
		CustomerEmail: c.Email,
		CustomerName:  c.Name,
		ServiceID:     req.ServiceID,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMyPayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.payments.ListForUser(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMyPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.payments.GetForUser(r.Context(), claimsFrom(r.Context()).Subject, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRefundRequest(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.refunds.Request(r.Context(), claimsFrom(r.Context()).Subject, req.PaymentID, req.RefundReason, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleMyRefunds(w http.ResponseWriter, r *http.Request) {
	list, err := s.refunds.ListForUser(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMyPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := s.payments.ListPurchases(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
