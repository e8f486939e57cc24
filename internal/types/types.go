// Package types defines the core domain models for archwall. It contains the
// Entry and ListAccount shapes shared by the ledger backends, the list
// program and the client state machine, plus the commitment levels a ledger
// session can be opened with.
package types

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Version is the current version of archwall
const Version = "0.3.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// MaxLinkLength is the longest link the list program accepts.
const MaxLinkLength = 512

// Entry is one appended item of the shared list. Entries have no identity
// beyond their position and are never edited or removed.
type Entry struct {
	Link      string           `json:"link"`      // Opaque text reference, usually an image URL
	Submitter solana.PublicKey `json:"submitter"` // Identity that signed the append
}

// ListAccount is the decoded layout of the shared list account.
type ListAccount struct {
	Owner   solana.PublicKey `json:"owner"`   // Identity that bootstrapped the account
	Entries []Entry          `json:"entries"` // Ordered as serialized by the ledger
}

// Links returns the entry links in ledger order.
func (a *ListAccount) Links() []string {
	links := make([]string, len(a.Entries))
	for i, e := range a.Entries {
		links[i] = e.Link
	}
	return links
}

// Commitment controls how many confirmations a read or write needs before it
// is treated as durable.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment parses a commitment level name. The empty string maps to
// confirmed.
func ParseCommitment(s string) (Commitment, error) {
	switch c := Commitment(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CommitmentConfirmed, nil
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, nil
	default:
		return "", fmt.Errorf("unknown commitment level %q", s)
	}
}
