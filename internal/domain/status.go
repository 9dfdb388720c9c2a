package domain

import "time"

// CallStatus tracks a call request through its lifecycle
type CallStatus string

const (
	StatusSubmitted CallStatus = "submitted"
	StatusConfirmed CallStatus = "confirmed"
	StatusFailed    CallStatus = "failed"
)

// StatusRecord is the document stored per call request, keyed by request id
type StatusRecord struct {
	Id        string     `json:"id"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Status    CallStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
