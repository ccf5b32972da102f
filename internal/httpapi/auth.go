package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/sectify/sectify/internal/authn"
	"github.com/sectify/sectify/internal/kvkeys"
	"github.com/sectify/sectify/internal/metrics"
	"github.com/sectify/sectify/internal/store"
	"github.com/sectify/sectify/internal/tokens"
)

const loginWindow = time.Minute

type authHandlers struct {
	d Deps
}

type signupReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *authHandlers) signup(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid JSON body"))
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		apierr.Write(w, apierr.Invalid("a valid email is required"))
		return
	}
	if len(req.Password) < 8 {
		apierr.Write(w, apierr.Invalid("password must be at least 8 characters"))
		return
	}

	hash, err := authn.HashPassword(req.Password)
	if err != nil {
		apierr.Write(w, apierr.IntegrityError())
		return
	}

	user, err := h.d.DB.CreateUser(r.Context(), store.CreateUserParams{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			apierr.Write(w, apierr.Conflict("an account with that email already exists"))
			return
		}
		apierr.Write(w, apierr.Transient("could not create account"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "email": user.Email})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *authHandlers) login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	attempts, _ := h.d.KV.Incr(r.Context(), kvkeys.LoginAttempts(ip)).Result()
	if attempts == 1 {
		h.d.KV.Expire(r.Context(), kvkeys.LoginAttempts(ip), loginWindow)
	}
	if int(attempts) > h.d.LoginLimit {
		metrics.LoginAttempts.WithLabelValues("throttled").Inc()
		apierr.Write(w, apierr.Throttled("too many login attempts, try again later"))
		return
	}

	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid JSON body"))
		return
	}

	user, err := h.d.DB.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		apierr.Write(w, apierr.AuthRequired("invalid credentials"))
		return
	}
	if err != nil {
		apierr.Write(w, apierr.Transient("could not look up account"))
		return
	}

	ok, err := authn.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil || !ok {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		apierr.Write(w, apierr.AuthRequired("invalid credentials"))
		return
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	if user.MFAEnabled {
		mfaToken, err := h.d.Tokens.Issue(tokens.PurposeMFA, user.ID, ip)
		if err != nil {
			apierr.Write(w, apierr.IntegrityError())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"mfa_required": true,
			"mfa_token":    mfaToken,
		})
		return
	}

	h.issueAccess(w, r, user, ip)
}

type verify2FAReq struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

func (h *authHandlers) verify2FA(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	var req verify2FAReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.Invalid("invalid JSON body"))
		return
	}

	claims, err := h.d.Tokens.Verify(req.MFAToken, tokens.PurposeMFA, ip)
	if err != nil {
		apierr.Write(w, apierr.As(err))
		return
	}

	user, err := h.d.DB.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		apierr.Write(w, apierr.AuthRequired("invalid session"))
		return
	}
	if user.TOTPSecret == nil || !authn.ValidateTOTP(*user.TOTPSecret, req.Code) {
		apierr.Write(w, apierr.AuthRequired("invalid verification code"))
		return
	}

	h.issueAccess(w, r, user, ip)
}

func (h *authHandlers) issueAccess(w http.ResponseWriter, r *http.Request, user store.User, ip string) {
	accessToken, err := h.d.Tokens.Issue(tokens.PurposeAccess, user.ID, ip)
	if err != nil {
		apierr.Write(w, apierr.IntegrityError())
		return
	}
	_ = h.d.DB.TouchLastLogin(r.Context(), user.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": accessToken,
		"user_id":      user.ID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
