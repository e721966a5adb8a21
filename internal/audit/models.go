package audit

import "time"

// EventCategory classifies audit events for routing and retention.
type EventCategory string

const (
	CategoryCompliance EventCategory = "compliance"
	CategorySecurity   EventCategory = "security"
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventUserCreated        AuditEvent = "user_created"
	EventAccountLinked      AuditEvent = "account_linked"
	EventAccountUnlinked    AuditEvent = "account_unlinked"
	EventRoleChanged        AuditEvent = "role_changed"
	EventLoginSucceeded     AuditEvent = "login_succeeded"
	EventLoginFailed        AuditEvent = "login_failed"
	EventMagicLinkRequested AuditEvent = "magic_link_requested"
	EventCodeIssued         AuditEvent = "authorization_code_issued"
	EventTokenIssued        AuditEvent = "token_issued"
	EventTokenDenied        AuditEvent = "token_denied"
	EventClientCreated      AuditEvent = "client_created"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:     CategoryCompliance,
	EventAccountLinked:   CategoryCompliance,
	EventAccountUnlinked: CategoryCompliance,

	EventLoginFailed: CategorySecurity,
	EventTokenDenied: CategorySecurity,
	EventRoleChanged: CategorySecurity,

	EventLoginSucceeded:     CategoryOperations,
	EventMagicLinkRequested: CategoryOperations,
	EventCodeIssued:         CategoryOperations,
	EventTokenIssued:        CategoryOperations,
	EventClientCreated:      CategoryOperations,
}

// Category returns the category for e. Unknown events are operational.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It never
// carries secrets, codes, or tokens.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Category  EventCategory `json:"category"`
	Action    AuditEvent    `json:"action"`
	UserID    string        `json:"user_id,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	IP        string        `json:"ip,omitempty"`
	Device    string        `json:"device,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}
