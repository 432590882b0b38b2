package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/http/middleware"
	"github.com/sandeepkv93/credential-session-service/internal/http/response"
	"github.com/sandeepkv93/credential-session-service/internal/security"
	"github.com/sandeepkv93/credential-session-service/internal/service"
)

const (
	forgotPasswordMessage = "If an account exists for this email, a password reset link has been sent."
	resendMessage         = "If an unverified account exists for this email, a verification link has been sent."
)

type AuthHandler struct {
	auth   service.AuthServiceInterface
	cookie security.CookieConfig
}

func NewAuthHandler(auth service.AuthServiceInterface, cookie security.CookieConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	UserID               string    `json:"user_id"`
	SessionID            string    `json:"session_id"`
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	TokenType            string    `json:"token_type"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "Account created. Check your email to verify your address.",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeTokens(w, r, res)
}

// Refresh reads the secret only from the refresh cookie. Any failure
// clears the cookie so the client re-authenticates from scratch.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, h.cookie.Name)
	res, err := h.auth.Refresh(r.Context(), raw, clientMeta(r))
	if err != nil {
		security.ClearRefreshCookie(w, h.cookie)
		writeServiceError(w, r, err)
		return
	}
	h.writeTokens(w, r, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), claims); err != nil {
		writeServiceError(w, r, err)
		return
	}
	security.ClearRefreshCookie(w, h.cookie)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.auth.LogoutAll(r.Context(), claims); err != nil {
		writeServiceError(w, r, err)
		return
	}
	security.ClearRefreshCookie(w, h.cookie)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Logged out from all sessions"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Password has been reset. Please log in again."})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	if err := h.auth.VerifyEmail(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Email verified"})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": resendMessage})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	user, err := h.auth.CurrentUser(r.Context(), claims)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	sessions, err := h.auth.ListSessions(r.Context(), claims)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, res *service.LoginResult) {
	security.SetRefreshCookie(w, h.cookie, res.RefreshToken)
	response.JSON(w, r, http.StatusOK, tokenResponse{
		UserID:               res.UserID,
		SessionID:            res.SessionID,
		AccessToken:          res.AccessToken,
		AccessTokenExpiresAt: res.AccessTokenExpiresAt,
		TokenType:            "Bearer",
	})
}

func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{UserAgent: r.UserAgent(), IPAddress: middleware.ClientIP(r)}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		response.Error(w, r, http.StatusBadRequest, string(service.KindInvalidInput), "invalid request body", nil)
		return false
	}
	return true
}
