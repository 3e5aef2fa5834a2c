package audit

import (
	"time"

	id "ccns/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryState covers committed changes to replicated protocol state.
	// Examples: address set, chain enabled, controller bound.
	CategoryState EventCategory = "state"

	// CategoryMessaging covers outbound and inbound cross-chain traffic.
	CategoryMessaging EventCategory = "messaging"

	// CategorySecurity covers rejected calls and rejected inbound messages.
	CategorySecurity EventCategory = "security"
)

// Event is emitted from protocol logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Chain is the selector of the chain that recorded the event.
	Chain id.ChainSelector
	// Peer is the remote chain involved: the destination for dispatches and
	// the claimed source for deliveries.
	Peer      id.ChainSelector
	Name      id.Name
	Owner     id.Address
	Actor     id.Address
	MessageID id.MessageID
	// Amount is the fee paid or credited, in the substrate's fee unit.
	Amount uint64
	Reason string
}

type AuditEvent string

const (
	EventControllerBound   AuditEvent = "controller_bound"
	EventAddressSet        AuditEvent = "address_set"
	EventChainEnabled      AuditEvent = "chain_enabled"
	EventNameRegistered    AuditEvent = "name_registered"
	EventMessageDispatched AuditEvent = "message_dispatched"
	EventMessageApplied    AuditEvent = "message_applied"
	EventMessageRejected   AuditEvent = "message_rejected"
	EventFeesFunded        AuditEvent = "fees_funded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventControllerBound:   CategoryState,
	EventAddressSet:        CategoryState,
	EventChainEnabled:      CategoryState,
	EventNameRegistered:    CategoryState,
	EventFeesFunded:        CategoryState,
	EventMessageDispatched: CategoryMessaging,
	EventMessageApplied:    CategoryMessaging,
	EventMessageRejected:   CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryState.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryState
}
