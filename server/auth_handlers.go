package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-gateway/auth"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
)

// StartLoginHandler opens a PKCE login. A missing redirectUri falls back to
// the first allowed one.
func (s *Server) StartLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.StartLoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if strings.TrimSpace(req.RedirectURI) == "" {
			req.RedirectURI = s.config.GetDefaultRedirectURI()
		}
		start, err := s.auth.StartLogin(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, start)
	}
}

// CallbackHandler redeems the provider redirect. GET reads code and state
// from the query, POST from a JSON body.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.CompleteLoginRequest
		if r.Method == http.MethodGet {
			q := r.URL.Query()
			if providerErr := q.Get("error"); providerErr != "" {
				writeError(w, r, apperrors.Unauthorized(apperrors.CodeAccessDenied, "identity provider refused the login").
					WithDetail("error", providerErr).
					WithDetail("errorDescription", q.Get("error_description")))
				return
			}
			req.Code, req.State, req.Device = q.Get("code"), q.Get("state"), q.Get("device")
		} else if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.Device = device(r, req.Device)
		req.IP = s.clientIP(r)

		resp, err := s.auth.CompleteLogin(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		resp, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type corpLoginInitRequest struct {
	Email      string `json:"email"`
	DeviceInfo string `json:"deviceInfo"`
}

func (s *Server) CorpLoginInitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req corpLoginInitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		start, err := s.auth.InitCorpLogin(r.Context(), req.Email, device(r, req.DeviceInfo))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, start)
	}
}

type corpFlowRequest struct {
	LoginFlowID string `json:"loginFlowId"`
	Factor      string `json:"factor,omitempty"`
}

func (s *Server) CorpLoginVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req corpFlowRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		status, err := s.auth.VerifyCorpLogin(r.Context(), req.LoginFlowID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) MFAChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req corpFlowRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		challenge, err := s.auth.ChallengeCorpMfa(r.Context(), req.LoginFlowID, strings.ToUpper(strings.TrimSpace(req.Factor)))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, challenge)
	}
}

func (s *Server) MFAVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.VerifyCorpMfaRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.Device = device(r, req.Device)
		req.IP = s.clientIP(r)
		resp, err := s.auth.VerifyCorpMfa(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
