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

package identity

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Login sequencing: the email code (step 1) is always verified before TOTP
// (step 2) is even checked, so a stolen TOTP secret alone never completes
// a login without also controlling the user's mailbox.
var (
	ErrCodeExpiredOrInvalid = errors.New("login code expired or invalid")
	ErrTOTPRequired         = errors.New("totp code required")
	ErrTOTPInvalid          = errors.New("totp code invalid")
)

// OpaqueStore is the subset of internal/cache.Client the identity package
// needs: short-lived one-time value storage for login codes and password
// reset tokens.
type OpaqueStore interface {
	SetOpaqueToken(ctx context.Context, kind, token, value string, ttl time.Duration) error
	ConsumeOpaqueToken(ctx context.Context, kind, token string) (string, error)
	DeleteOpaqueToken(ctx context.Context, kind, token string) error
}

// Mailer sends the email-code and password-reset messages. It is an
// external collaborator (real SMTP/provider integration is out of scope);
// a no-op or logging implementation is fine for tests.
type Mailer interface {
	SendLoginCode(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, resetToken string) error
}

const (
	loginCodeKind = "login_code"
	resetKind     = "password_reset"
	loginCodeTTL  = 10 * time.Minute
	resetTTL      = 30 * time.Minute
)

// RequestLoginCode generates and stores a 6-digit email verification code
// for step 1 of login, independent of password verification (used for
// passwordless/step-up flows as well as the standard password+code flow).
func (s *Service) RequestLoginCode(ctx context.Context, store OpaqueStore, mailer Mailer, userID, email string) error {
	code, err := randomDigits(6)
	if err != nil {
		return err
	}
	if err := store.SetOpaqueToken(ctx, loginCodeKind, userID, code, loginCodeTTL); err != nil {
		return fmt.Errorf("failed to store login code: %w", err)
	}
	return mailer.SendLoginCode(ctx, email, code)
}

// VerifyLoginCode consumes the stored email code. If the user has TOTP
// enrolled, the caller must subsequently call VerifyTOTP before issuing
// tokens; ErrTOTPRequired signals that.
func (s *Service) VerifyLoginCode(ctx context.Context, store OpaqueStore, userID, code string) error {
	stored, err := store.ConsumeOpaqueToken(ctx, loginCodeKind, userID)
	if err != nil {
		return ErrCodeExpiredOrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrCodeExpiredOrInvalid
	}

	user, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	if user.TOTPEnabled {
		return ErrTOTPRequired
	}
	return nil
}

// EnrollTOTP generates a new TOTP secret, encrypts it at rest with the
// service's derived key, and returns the provisioning URI for the user to
// scan. TOTP isn't enabled until VerifyTOTP succeeds once.
func (s *Service) EnrollTOTP(ctx context.Context, userID, accountName, issuer string, cipherKey []byte) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: accountName})
	if err != nil {
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}

	encrypted, err := encryptSecret(cipherKey, []byte(key.Secret()))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt totp secret: %w", err)
	}

	user, err := s.repo.GetByID(userID)
	if err != nil {
		return "", ErrUserNotFound
	}
	user.TOTPSecretEncrypted = encrypted
	user.TOTPEnabled = false
	if err := s.repo.Update(user); err != nil {
		return "", fmt.Errorf("failed to store totp secret: %w", err)
	}

	return key.URL(), nil
}

// VerifyTOTP checks a 6-digit TOTP code against the user's enrolled
// secret. On the first successful verification it flips TOTPEnabled true.
func (s *Service) VerifyTOTP(ctx context.Context, userID, code string, cipherKey []byte) error {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	if len(user.TOTPSecretEncrypted) == 0 {
		return ErrTOTPInvalid
	}

	secret, err := decryptSecret(cipherKey, user.TOTPSecretEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt totp secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, string(secret), time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		s.auditLogger.Log(ctx, audit.Event{
			Type: audit.TypeLoginFailed, ActorID: userID, Resource: "totp",
			Metadata: map[string]any{audit.AttrReason: "invalid_totp"},
		})
		return ErrTOTPInvalid
	}

	if !user.TOTPEnabled {
		user.TOTPEnabled = true
		_ = s.repo.Update(user)
	}
	return nil
}

// DisableTOTP turns off 2FA and discards the stored secret. Callers must
// have already verified a current TOTP code before calling this.
func (s *Service) DisableTOTP(ctx context.Context, userID string) error {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	user.TOTPEnabled = false
	user.TOTPSecretEncrypted = nil
	return s.repo.Update(user)
}

// RequestPasswordReset issues a one-time reset token and emails it.
func (s *Service) RequestPasswordReset(ctx context.Context, store OpaqueStore, mailer Mailer, userID, email string) error {
	tokenBytes := make([]byte, 24)
	if _, err := rand.Read(tokenBytes); err != nil {
		return err
	}
	resetToken := fmt.Sprintf("%x", tokenBytes)
	if err := store.SetOpaqueToken(ctx, resetKind, resetToken, userID, resetTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return mailer.SendPasswordReset(ctx, email, resetToken)
}

// CompletePasswordReset consumes a reset token and sets a new password.
func (s *Service) CompletePasswordReset(ctx context.Context, store OpaqueStore, resetToken, newPassword string) error {
	userID, err := store.ConsumeOpaqueToken(ctx, resetKind, resetToken)
	if err != nil {
		return ErrCodeExpiredOrInvalid
	}
	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(userID, hash); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type: audit.TypePasswordChanged, ActorID: userID, Resource: audit.ResourceUserCredentials,
	})
	return nil
}

func randomDigits(n int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = digits[int(b)%len(digits)]
	}
	return string(out), nil
}

func encryptSecret(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptSecret(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("identity: ciphertext too short")
	}
	nonce, data := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, data, nil)
}
