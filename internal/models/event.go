package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventCommissionCredited  = "commission.credited"
	EventCommissionCancelled = "commission.cancelled"
	EventCommissionPaid      = "commission.paid"
	EventCashoutRequested    = "cashout.requested"
	EventCashoutApproved     = "cashout.approved"
	EventCashoutRejected     = "cashout.rejected"
)

// LedgerEvent is an outbox record written in the same transaction as the change it describes
type LedgerEvent struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Kind        string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Build outbox event with payload marshalled to JSON
func NewLedgerEvent(accountID uuid.UUID, kind string, payload any) (LedgerEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return LedgerEvent{}, fmt.Errorf("can't marshal %s event payload: %w", kind, err)
	}

	return LedgerEvent{
		AccountID: accountID,
		Kind:      kind,
		Payload:   data,
	}, nil
}

// ReconciliationIssue marks an account that needs a manual look by an operator
type ReconciliationIssue struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	Reason     string
	Details    json.RawMessage
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

const (
	ReasonReversalOverdraft = "reversal_overdraft"
	ReasonProjectionDrift   = "projection_drift"
)
