package client

import (
	"errors"
	"time"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/listsync"
	"archwall.mini/aw/internal/types"
	"archwall.mini/aw/internal/wallet"
)

// Status is the connection and workflow state of the client.
type Status string

const (
	StatusDisconnected  Status = "disconnected"
	StatusConnecting    Status = "connecting"
	StatusAwaitingInit  Status = "awaiting_init"
	StatusBootstrapping Status = "bootstrapping"
	StatusReady         Status = "ready"
	StatusSubmitting    Status = "submitting"
)

// busy reports whether an operation is in flight.
func (s Status) busy() bool {
	return s == StatusConnecting || s == StatusBootstrapping || s == StatusSubmitting
}

// AccountStatus is what the client last observed about the list account.
type AccountStatus string

const (
	AccountUnknown AccountStatus = "unknown"
	AccountAbsent  AccountStatus = "absent"
	AccountPresent AccountStatus = "present"
)

// ErrorKind classifies an annotation.
type ErrorKind string

const (
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindUserRejected        ErrorKind = "user_rejected"
	KindAccountNotFound     ErrorKind = "account_not_found"
	KindNetwork             ErrorKind = "network"
	KindRejectedByLedger    ErrorKind = "rejected_by_ledger"
	KindInvalidEntry        ErrorKind = "invalid_entry"
)

// Annotation is a non-fatal error attached to the current state. It stays
// until dismissed or until the next user action.
type Annotation struct {
	Kind      ErrorKind `json:"kind"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// State is a snapshot of the client. Entries always come from the most
// recent successful fetch.
type State struct {
	Status        Status        `json:"status"`
	Wallet        string        `json:"wallet,omitempty"`
	Account       string        `json:"account"`
	AccountStatus AccountStatus `json:"account_status"`
	Owner         string        `json:"owner,omitempty"`
	Entries       []types.Entry `json:"entries"`
	Height        uint64        `json:"height"`
	Pending       bool          `json:"pending"`
	Error         *Annotation   `json:"error,omitempty"`
	SessionID     string        `json:"session_id,omitempty"`
	Endpoint      string        `json:"endpoint,omitempty"`
	Commitment    string        `json:"commitment,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (s State) clone() State {
	out := s
	out.Entries = make([]types.Entry, len(s.Entries))
	copy(out.Entries, s.Entries)
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

var (
	// ErrBusy rejects an action while another one is in flight.
	ErrBusy = errors.New("another operation is in progress")
	// ErrInvalidState rejects an action the current state does not offer.
	ErrInvalidState = errors.New("action not available in current state")
)

// Classify maps an operation error to an annotation kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, wallet.ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, wallet.ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, listsync.ErrEmptyEntry), errors.Is(err, listsync.ErrEntryTooLong):
		return KindInvalidEntry
	}
	switch ledger.KindOf(err) {
	case ledger.KindRejected:
		return KindRejectedByLedger
	case ledger.KindNotFound:
		return KindAccountNotFound
	}
	return KindNetwork
}
