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
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// totpKeyInfo binds the derived key to its single purpose so the same
// master ENCRYPTION_KEY can later be reused for another purpose (e.g.
// field-level encryption) via a different info label without key reuse.
const totpKeyInfo = "totp-secret-v1"

// DeriveTOTPCipherKey derives the 32-byte AES-256-GCM key used to encrypt
// TOTP secrets at rest from the operator-supplied master encryption key.
func DeriveTOTPCipherKey(masterKey []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(totpKeyInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("identity: derive totp key: %w", err)
	}
	return out, nil
}
