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
	"log/slog"
)

// SlogMailer logs outbound mail instead of sending it. Real delivery (SES,
// SMTP, a provider API) is an external collaborator and out of scope here;
// this implementation keeps the login and password-reset flows exercisable
// end to end without one.
type SlogMailer struct{}

// NewSlogMailer constructs a Mailer that logs instead of sending mail.
func NewSlogMailer() *SlogMailer {
	return &SlogMailer{}
}

func (m *SlogMailer) SendLoginCode(ctx context.Context, email, code string) error {
	slog.InfoContext(ctx, "mail: login code", slog.String("email", email), slog.String("code", code))
	return nil
}

func (m *SlogMailer) SendPasswordReset(ctx context.Context, email, resetToken string) error {
	slog.InfoContext(ctx, "mail: password reset", slog.String("email", email), slog.String("reset_token", resetToken))
	return nil
}
