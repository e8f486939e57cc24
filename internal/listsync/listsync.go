// Package listsync reads the shared list and appends to it. Appends never
// return the list; callers fetch again so the ledger stays the only source
// of ordering and content.
package listsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/types"
)

var (
	// ErrEmptyEntry rejects a blank submission before any network call.
	ErrEmptyEntry = errors.New("entry is empty")
	// ErrEntryTooLong rejects a link the program would refuse.
	ErrEntryTooLong = fmt.Errorf("entry is longer than %d bytes", types.MaxLinkLength)
)

// Listing is the result of a fetch. Exists is false when the account was
// never initialized, which differs from an initialized list with no
// entries.
type Listing struct {
	Exists  bool             `json:"exists"`
	Owner   solana.PublicKey `json:"owner"`
	Entries []types.Entry    `json:"entries"`
	Height  uint64           `json:"height"`
}

// Synchronizer reads and appends to one list account.
type Synchronizer struct {
	session ledger.Session
	address solana.PublicKey
	log     zerolog.Logger
}

// New binds a synchronizer to the account at address.
func New(session ledger.Session, address solana.PublicKey, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		session: session,
		address: address,
		log:     log.With().Str("component", "listsync").Logger(),
	}
}

// ValidateEntry trims link and checks it locally.
func ValidateEntry(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", ErrEmptyEntry
	}
	if len(link) > types.MaxLinkLength {
		return "", ErrEntryTooLong
	}
	return link, nil
}

// FetchEntries reads the current list.
func (s *Synchronizer) FetchEntries(ctx context.Context) (*Listing, error) {
	snap, err := s.session.FetchAccount(ctx, s.address)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &Listing{Exists: false, Entries: []types.Entry{}}, nil
		}
		return nil, err
	}

	entries := snap.Account.Entries
	if entries == nil {
		entries = []types.Entry{}
	}
	s.log.Debug().Int("entries", len(entries)).Uint64("height", snap.Height).Msg("Fetched list")
	return &Listing{
		Exists:  true,
		Owner:   snap.Account.Owner,
		Entries: entries,
		Height:  snap.Height,
	}, nil
}

// AppendEntry submits link signed by submitter. Invalid links fail with
// ErrEmptyEntry or ErrEntryTooLong and never reach the ledger.
func (s *Synchronizer) AppendEntry(ctx context.Context, submitter ledger.Signer, link string) (*ledger.Receipt, error) {
	link, err := ValidateEntry(link)
	if err != nil {
		return nil, err
	}

	receipt, err := s.session.SubmitTransaction(ctx,
		[]ledger.Instruction{ledger.AppendEntry(s.address, submitter.PublicKey(), link)},
		[]ledger.Signer{submitter})
	if err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}
	s.log.Info().Str("tx", receipt.ID).Str("submitter", submitter.PublicKey().String()).Msg("Appended entry")
	return receipt, nil
}
