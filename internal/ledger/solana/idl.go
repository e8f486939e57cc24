package solana

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/types"
)

// Anchor discriminators: the first eight bytes of sha256 over a namespaced
// name. Instructions use "global:<ix>", accounts "account:<Type>".
var (
	initializeAccountDiscriminator = discriminator("global", "initialize_account")
	appendEntryDiscriminator       = discriminator("global", "append_entry")
	listAccountDiscriminator       = discriminator("account", "ListAccount")
)

func discriminator(namespace, name string) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	copy(d[:], sum[:8])
	return d
}

// onchainEntry and onchainAccount mirror the program's borsh layout.
type onchainEntry struct {
	Link      string
	Submitter solana.PublicKey
}

type onchainAccount struct {
	Owner   solana.PublicKey
	Entries []onchainEntry
}

type appendEntryArgs struct {
	Link string
}

// BuildInstruction converts a ledger instruction into a program call.
//
// initialize_account accounts: list account (w, s), owner (w, s, payer),
// system program. append_entry accounts: list account (w), submitter (s).
func BuildInstruction(programID solana.PublicKey, ix ledger.Instruction) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	switch ix.Op {
	case ledger.OpInitializeAccount:
		buf.Write(initializeAccountDiscriminator[:])
		return solana.NewInstruction(programID, solana.AccountMetaSlice{
			solana.Meta(ix.Account).WRITE().SIGNER(),
			solana.Meta(ix.Authority).WRITE().SIGNER(),
			solana.Meta(solana.SystemProgramID),
		}, buf.Bytes()), nil

	case ledger.OpAppendEntry:
		buf.Write(appendEntryDiscriminator[:])
		if err := bin.NewBorshEncoder(buf).Encode(appendEntryArgs{Link: ix.Link}); err != nil {
			return nil, fmt.Errorf("encode append_entry args: %w", err)
		}
		return solana.NewInstruction(programID, solana.AccountMetaSlice{
			solana.Meta(ix.Account).WRITE(),
			solana.Meta(ix.Authority).SIGNER(),
		}, buf.Bytes()), nil
	}
	return nil, fmt.Errorf("unknown instruction %q", ix.Op)
}

// EncodeAccount writes the account in program layout.
func EncodeAccount(acct types.ListAccount) ([]byte, error) {
	onchain := onchainAccount{Owner: acct.Owner, Entries: make([]onchainEntry, len(acct.Entries))}
	for i, e := range acct.Entries {
		onchain.Entries[i] = onchainEntry{Link: e.Link, Submitter: e.Submitter}
	}
	buf := new(bytes.Buffer)
	buf.Write(listAccountDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(onchain); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeAccount parses raw account data. Trailing bytes are ignored since
// the program allocates account space up front.
func DecodeAccount(data []byte) (types.ListAccount, error) {
	if len(data) < 8 {
		return types.ListAccount{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], listAccountDiscriminator[:]) {
		return types.ListAccount{}, fmt.Errorf("account discriminator mismatch")
	}

	var onchain onchainAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&onchain); err != nil {
		return types.ListAccount{}, fmt.Errorf("decode list account: %w", err)
	}
	acct := types.ListAccount{Owner: onchain.Owner, Entries: make([]types.Entry, len(onchain.Entries))}
	for i, e := range onchain.Entries {
		acct.Entries[i] = types.Entry{Link: e.Link, Submitter: e.Submitter}
	}
	return acct, nil
}
