// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"net/http"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
	"github.com/opentrusty/opentrusty/internal/token"
	"log/slog"
)

// VerifyCodeRequest is step 2 of login: the 6-digit email code, and a TOTP
// code if the account has 2FA enrolled (ErrTOTPRequired on the first call
// tells the client to collect and resubmit one).
type VerifyCodeRequest struct {
	Email    string `json:"email" binding:"required"`
	Code     string `json:"code" binding:"required"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// TokenPairResponse is the JWT pair minted at the end of a successful login
// or refresh.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// VerifyCode completes step 2 of login: it consumes the email code minted
// by Login, requires a TOTP code if the account has 2FA enrolled, and
// mints an access/refresh JWT pair.
// @Summary Verify login code
// @Description Completes two-step login and issues JWTs
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body VerifyCodeRequest true "Login code"
// @Success 200 {object} TokenPairResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/verify-code [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID := GetTenantID(r.Context())
	user, err := h.identityService.GetByEmail(r.Context(), tenantID, req.Email)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid code")
		return
	}

	err = h.identityService.VerifyLoginCode(r.Context(), h.opaqueStore, user.ID, req.Code)
	switch err {
	case nil:
		// No 2FA enrolled; fall through to token issuance.
	case identity.ErrTOTPRequired:
		if req.TOTPCode == "" {
			respondJSON(w, http.StatusOK, map[string]any{"status": "totp_required"})
			return
		}
		if verr := h.identityService.VerifyTOTP(r.Context(), user.ID, req.TOTPCode, h.totpCipherKey); verr != nil {
			respondError(w, http.StatusUnauthorized, "invalid totp code")
			return
		}
	default:
		respondError(w, http.StatusUnauthorized, "invalid code")
		return
	}

	h.issueTokenPair(w, r, tenantID, user)
}

// issueTokenPair mints and responds with an access/refresh JWT pair for a
// fully-authenticated user, and audits the login.
func (h *Handler) issueTokenPair(w http.ResponseWriter, r *http.Request, tenantID string, user *identity.User) {
	accessJTI := id.NewUUIDv7()
	accessToken, err := h.tokenHelper.Mint(token.MintOptions{
		UserID:  user.ID,
		Purpose: token.PurposeAccess,
		JTI:     accessJTI,
		TTL:     h.accessTokenTTL,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to mint access token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	refreshJTI := id.NewUUIDv7()
	refreshToken, err := h.tokenHelper.Mint(token.MintOptions{
		UserID:  user.ID,
		Purpose: token.PurposeRefresh,
		JTI:     refreshJTI,
		TTL:     h.refreshTokenTTL,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to mint refresh token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		TenantID:  tenantID,
		ActorID:   user.ID,
		Resource:  "token",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{"jti": accessJTI},
	})

	respondJSON(w, http.StatusOK, TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.accessTokenTTL.Seconds()),
	})
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh JWT: the presented token is revoked (denylisted
// by JTI) and a new access/refresh pair is minted, so a leaked refresh
// token can't be replayed after its legitimate holder refreshes.
// @Summary Refresh tokens
// @Description Rotates an access/refresh JWT pair
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} TokenPairResponse
// @Failure 401 {object} map[string]string
// @Router /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims, err := h.tokenHelper.Parse(req.RefreshToken, token.PurposeRefresh)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	revoked, err := h.opaqueStore.IsJTIRevoked(r.Context(), claims.JTI)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to check token revocation", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}
	if revoked {
		respondError(w, http.StatusUnauthorized, "refresh token has been revoked")
		return
	}

	// Rotate: the presented refresh token is single-use.
	if err := h.opaqueStore.RevokeJTI(r.Context(), claims.JTI, h.refreshTokenTTL); err != nil {
		slog.ErrorContext(r.Context(), "failed to revoke refresh token", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	user, err := h.identityService.GetUser(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeTokenRefreshed,
		TenantID: tenantID,
		ActorID:  user.ID,
		Resource: "token",
	})

	h.issueTokenPair(w, r, tenantID, user)
}

// TwoFASetupResponse carries the provisioning URI for a freshly-enrolled
// TOTP secret.
type TwoFASetupResponse struct {
	ProvisioningURI string `json:"provisioning_uri"`
}

// TwoFAVerifyRequest carries the first TOTP code, confirming enrollment.
type TwoFAVerifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFASetup generates a new TOTP secret for the authenticated user and
// returns its provisioning URI. TOTP isn't enabled until TwoFAVerify
// succeeds once.
// @Summary Enroll TOTP 2FA
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} TwoFASetupResponse
// @Router /auth/2fa/setup [post]
func (h *Handler) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	uri, err := h.identityService.EnrollTOTP(r.Context(), userID, user.Email, h.jwtIssuer, h.totpCipherKey)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to enroll totp", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to enroll 2fa")
		return
	}

	respondJSON(w, http.StatusOK, TwoFASetupResponse{ProvisioningURI: uri})
}

// TwoFAVerify confirms a TOTP enrollment with the first generated code.
// @Summary Confirm TOTP 2FA enrollment
// @Tags Auth
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body TwoFAVerifyRequest true "TOTP code"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/2fa/verify [post]
func (h *Handler) TwoFAVerify(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req TwoFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.VerifyTOTP(r.Context(), userID, req.Code, h.totpCipherKey); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid totp code")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeTwoFactorEnabled,
		ActorID:  userID,
		Resource: "user_credentials",
	})

	respondJSON(w, http.StatusOK, map[string]string{"message": "2fa enabled"})
}

// TwoFADisable turns off TOTP 2FA for the authenticated user after
// confirming the current code, so a stolen session alone can't disable it.
// @Summary Disable TOTP 2FA
// @Tags Auth
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body TwoFAVerifyRequest true "Current TOTP code"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/2fa/disable [post]
func (h *Handler) TwoFADisable(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req TwoFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.VerifyTOTP(r.Context(), userID, req.Code, h.totpCipherKey); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid totp code")
		return
	}

	if err := h.identityService.DisableTOTP(r.Context(), userID); err != nil {
		slog.ErrorContext(r.Context(), "failed to disable totp", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to disable 2fa")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:     audit.TypeTwoFactorDisabled,
		ActorID:  userID,
		Resource: "user_credentials",
	})

	respondJSON(w, http.StatusOK, map[string]string{"message": "2fa disabled"})
}

// PasswordResetRequestPayload starts a password reset.
type PasswordResetRequestPayload struct {
	Email string `json:"email" binding:"required"`
}

// RequestPasswordReset issues a reset token and emails it. The response is
// identical whether or not the email exists, so this endpoint can't be
// used to enumerate registered accounts.
// @Summary Request password reset
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body PasswordResetRequestPayload true "Email"
// @Success 200 {object} map[string]string
// @Router /auth/request-password-reset [post]
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID := GetTenantID(r.Context())
	user, err := h.identityService.GetByEmail(r.Context(), tenantID, req.Email)
	if err == nil {
		if err := h.identityService.RequestPasswordReset(r.Context(), h.opaqueStore, h.mailer, user.ID, user.Email); err != nil {
			slog.ErrorContext(r.Context(), "failed to request password reset", logger.Error(err))
		} else {
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:     audit.TypePasswordResetRequested,
				TenantID: tenantID,
				ActorID:  user.ID,
				Resource: audit.ResourceUserCredentials,
			})
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "if that email is registered, a reset link has been sent",
	})
}

// PasswordResetCompletePayload completes a password reset.
type PasswordResetCompletePayload struct {
	ResetToken  string `json:"reset_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetPassword consumes a reset token and sets a new password.
// @Summary Complete password reset
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body PasswordResetCompletePayload true "Reset token and new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetCompletePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.CompletePasswordReset(r.Context(), h.opaqueStore, req.ResetToken, req.NewPassword); err != nil {
		switch err {
		case identity.ErrWeakPassword:
			respondError(w, http.StatusBadRequest, "password does not meet strength requirements")
		default:
			respondError(w, http.StatusBadRequest, "invalid or expired reset token")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password reset successfully"})
}
