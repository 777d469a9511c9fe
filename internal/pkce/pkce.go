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

// Package pkce implements RFC 7636 Proof Key for Code Exchange primitives.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// MethodS256 and MethodPlain are the two PKCE transform methods RFC 7636
// defines. MethodPlain exists for clients unable to perform SHA-256 and
// should be discouraged in any production client registration.
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// ErrUnsupportedMethod is returned when a code_challenge_method other than
// S256 or plain is presented.
var ErrUnsupportedMethod = errors.New("pkce: unsupported code_challenge_method")

// GenerateVerifier returns a cryptographically random code_verifier, 43
// characters of unpadded base64url, the minimum length RFC 7636 allows.
func GenerateVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Challenge derives a code_challenge from a code_verifier for the given
// method.
func Challenge(verifier, method string) (string, error) {
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", ErrUnsupportedMethod
	}
}

// Validate reports whether verifier, transformed by method, equals
// challenge. The comparison is constant-time to avoid leaking timing
// information about how many leading bytes of a guessed verifier matched.
func Validate(verifier, challenge, method string) (bool, error) {
	want, err := Challenge(verifier, method)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(challenge)) == 1, nil
}
