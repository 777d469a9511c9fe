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

// Package token mints and verifies the service's own HS256 JWTs: access
// tokens, refresh tokens, and short-lived 2fa_pre_auth tokens. OIDC
// id_token issuance stays on the RS256 path in internal/oidc.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose distinguishes the token types this package issues so a token
// minted for one purpose cannot be replayed as another.
type Purpose string

const (
	PurposeAccess     Purpose = "access"
	PurposeRefresh    Purpose = "refresh"
	PurposeTwoFAPre   Purpose = "2fa_pre_auth"
	PurposeResetToken Purpose = "password_reset"
)

var (
	// ErrInvalidToken covers malformed signatures, bad algorithms, and
	// claims that fail structural validation.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrExpiredToken is returned for a structurally valid but expired token.
	ErrExpiredToken = errors.New("token: expired")
	// ErrWrongPurpose is returned when a token minted for one purpose is
	// presented where another purpose is required.
	ErrWrongPurpose = errors.New("token: wrong purpose")
)

// Claims is the payload carried by every token this package issues.
type Claims struct {
	UserID         string   `json:"sub"`
	OrganizationID string   `json:"org_id,omitempty"`
	ClientID       string   `json:"client_id,omitempty"`
	Scope          string   `json:"scope,omitempty"`
	Purpose        Purpose  `json:"purpose"`
	JTI            string   `json:"jti"`
	jwt.RegisteredClaims
}

// Helper mints and verifies HS256 JWTs against a single shared secret.
type Helper struct {
	secret []byte
	issuer string
}

// NewHelper constructs a Helper. secret must be at least 32 bytes; callers
// validate this at startup via internal/config.
func NewHelper(secret []byte, issuer string) *Helper {
	return &Helper{secret: secret, issuer: issuer}
}

// MintOptions customizes a single call to Mint.
type MintOptions struct {
	UserID         string
	OrganizationID string
	ClientID       string
	Scope          string
	Purpose        Purpose
	JTI            string
	TTL            time.Duration
}

// Mint signs a new JWT for the given purpose and returns the raw compact
// serialization.
func (h *Helper) Mint(opts MintOptions) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:         opts.UserID,
		OrganizationID: opts.OrganizationID,
		ClientID:       opts.ClientID,
		Scope:          opts.Scope,
		Purpose:        opts.Purpose,
		JTI:            opts.JTI,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   opts.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
			ID:        opts.JTI,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(h.secret)
}

// Parse verifies the signature, algorithm, and expiry of a token and
// returns its claims. wantPurpose, if non-empty, additionally enforces the
// token was minted for that purpose.
func (h *Helper) Parse(raw string, wantPurpose Purpose) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithIssuer(h.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if wantPurpose != "" && claims.Purpose != wantPurpose {
		return nil, ErrWrongPurpose
	}
	return &claims, nil
}
