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

package audit

// Operation intent values, carried by the X-Operation-Intent header.
const (
	IntentManual            = "manual"
	IntentAutomation        = "automation"
	IntentTest              = "test"
	IntentMigration         = "migration"
	IntentIncidentResponse  = "incident_response"
	IntentScheduled         = "scheduled"
	IntentStandard          = "standard"
)

// Criticality values, carried by the X-Criticality header.
const (
	CriticalityCritical = "critical"
	CriticalityStandard = "standard"
	CriticalityLow      = "low"
)

// RequestIntent is the structured "why" behind a request, extracted by the
// transport layer's intent middleware from a fixed set of HTTP headers and
// threaded through to the audit pipeline for operational context and
// sampling decisions.
type RequestIntent struct {
	OperationIntent string
	SessionMode     string
	RequestPurpose  string
	BatchID         string
	IsTest          bool
	Criticality     string
	ClientType      string
}

// DefaultRequestIntent is used whenever a header is absent or carries a
// value outside the accepted enum, so an unparseable header degrades to a
// safe default rather than propagating garbage.
func DefaultRequestIntent() RequestIntent {
	return RequestIntent{
		OperationIntent: IntentStandard,
		SessionMode:     "interactive",
		Criticality:     CriticalityStandard,
	}
}

var validOperationIntents = map[string]bool{
	IntentManual: true, IntentAutomation: true, IntentTest: true,
	IntentMigration: true, IntentIncidentResponse: true, IntentScheduled: true,
	IntentStandard: true,
}

var validCriticalities = map[string]bool{
	CriticalityCritical: true, CriticalityStandard: true, CriticalityLow: true,
}

// NormalizeOperationIntent returns v if it's a recognized enum value, else
// the default "standard".
func NormalizeOperationIntent(v string) string {
	if validOperationIntents[v] {
		return v
	}
	return IntentStandard
}

// NormalizeCriticality returns v if it's a recognized enum value, else the
// default "standard".
func NormalizeCriticality(v string) string {
	if validCriticalities[v] {
		return v
	}
	return CriticalityStandard
}
