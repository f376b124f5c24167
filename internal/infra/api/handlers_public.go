package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/infra/logging"
)

const signatureHeader = "Stripe-Signature"

type otpRequest struct {
	Contact string `json:"contact" validate:"required,email"`
}

type otpVerifyRequest struct {
	Contact string `json:"contact" validate:"required,email"`
	Code    string `json:"code" validate:"required,numeric,len=6"`
}

// handleWebhook acknowledges every verified delivery with 200 so the gateway
// stops retrying. Only bad signatures (400) and storage failures (500) are
// reported back.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.WebhookMaxBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "unreadable body")
		return
	}

	err = s.webhooks.Handle(r.Context(), body, r.Header.Get(signatureHeader))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("webhook rejected")
		writeMessage(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ch, err := s.otp.Request(r.Context(), req.Contact)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.otp.Verify(r.Context(), req.Contact, req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}
