package comet

import (
	"encoding/json"
	"fmt"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/types"
)

// EncodeInstructions serializes instructions into the list program's signed
// JSON transaction format. The program executes exactly one instruction per
// transaction.
func EncodeInstructions(instructions []ledger.Instruction, signers []ledger.Signer) ([]byte, error) {
	if len(instructions) != 1 {
		return nil, fmt.Errorf("list program takes one instruction per transaction, got %d", len(instructions))
	}
	ix := instructions[0]

	var (
		tx  *types.Transaction
		err error
	)
	switch ix.Op {
	case ledger.OpInitializeAccount:
		tx, err = types.NewTransaction(types.TxInitializeAccount, types.InitializeAccountPayload{
			Account: ix.Account,
			Owner:   ix.Authority,
		})
	case ledger.OpAppendEntry:
		tx, err = types.NewTransaction(types.TxAppendEntry, types.AppendEntryPayload{
			Account:   ix.Account,
			Submitter: ix.Authority,
			Link:      ix.Link,
		})
	default:
		return nil, fmt.Errorf("unknown instruction %q", ix.Op)
	}
	if err != nil {
		return nil, err
	}

	signed, err := tx.Sign(signers...)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	txBytes, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return txBytes, nil
}

// DecodeAccount parses the JSON account value returned by the program's
// account query.
func DecodeAccount(value []byte) (types.ListAccount, error) {
	var acct types.ListAccount
	if err := json.Unmarshal(value, &acct); err != nil {
		return types.ListAccount{}, err
	}
	if acct.Entries == nil {
		acct.Entries = []types.Entry{}
	}
	return acct, nil
}
