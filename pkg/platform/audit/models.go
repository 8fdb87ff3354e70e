package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose, enabling
// separate retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance
	// (consent changes, owner provisioning). Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events for security monitoring and forensics
	// (client auth failures, bad credentials, code replay attempts).
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine issuance events useful for debugging;
	// these can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the token and authorization pipelines. Transport
// agnostic so sinks (memory, Kafka) can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Subject   string        `json:"subject,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
	Action    string        `json:"action"`
	Scope     string        `json:"scope,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventTokenIssued                AuditEvent = "token_issued"
	EventTokenReused                AuditEvent = "token_reused"
	EventTokenRefreshed             AuditEvent = "token_refreshed"
	EventAuthorizationCodeGranted   AuditEvent = "authorization_code_granted"
	EventAuthorizationCodeExchanged AuditEvent = "authorization_code_exchanged"
	EventClientAuthFailed           AuditEvent = "client_auth_failed"
	EventOwnerAuthFailed            AuditEvent = "owner_auth_failed"
	EventOwnerCreated               AuditEvent = "owner_created"
	EventConsentGranted             AuditEvent = "consent_granted"
	EventConsentDenied              AuditEvent = "consent_denied"
	EventClientRegistered           AuditEvent = "client_registered"
	EventConfirmationCodeSent       AuditEvent = "confirmation_code_sent"
	EventConfirmationCodeValidated  AuditEvent = "confirmation_code_validated"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventTokenIssued:                CategoryOperations,
	EventTokenReused:                CategoryOperations,
	EventTokenRefreshed:             CategoryOperations,
	EventAuthorizationCodeGranted:   CategoryOperations,
	EventAuthorizationCodeExchanged: CategoryOperations,
	EventClientAuthFailed:           CategorySecurity,
	EventOwnerAuthFailed:            CategorySecurity,
	EventOwnerCreated:               CategoryCompliance,
	EventConsentGranted:             CategoryCompliance,
	EventConsentDenied:              CategoryCompliance,
	EventClientRegistered:           CategoryCompliance,
	EventConfirmationCodeSent:       CategorySecurity,
	EventConfirmationCodeValidated:  CategorySecurity,
}

// CategoryOf returns the category for an event, defaulting to operations.
func CategoryOf(action AuditEvent) EventCategory {
	if c, ok := eventCategories[action]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
