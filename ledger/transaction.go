package ledger

import (
	"bytes"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
)

// BuildTransaction() creates a transfer fragment against the snapshot. keys[i] must own inputs[i].Address; the
// spending counters are assigned from the snapshot (repeated inputs of one account get consecutive counters).
// The inputs must cover the outputs plus the linear fee of the shape. The state is never mutated
func BuildTransaction(state *State, inputs []Input, outputs []Output, keys []*crypto.KeyGroup) (*Fragment, lib.ErrorI) {
	if len(inputs) == 0 {
		return nil, lib.ErrNoInputs()
	}
	if len(outputs) == 0 {
		return nil, lib.ErrNoOutputs()
	}
	// one key per input
	if len(keys) != len(inputs) {
		return nil, lib.ErrMissingWitness(min(len(keys), len(inputs)))
	}
	// each key must own the input it is claimed for
	for i, input := range inputs {
		if keys[i] == nil || input.Address == nil || !ownsAddress(keys[i].PublicKey, input.Address) {
			return nil, lib.ErrInvalidSignature(i)
		}
	}
	// the inputs must cover the outputs plus the fee
	in, okIn := sumInputs(inputs)
	out, okOut := sumOutputs(outputs)
	if !okIn || !okOut {
		return nil, lib.ErrInvalidValue()
	}
	if fee := state.Fee(len(inputs), len(outputs), false); in < out || in-out < fee {
		return nil, lib.ErrInsufficientFunds(out+fee, in)
	}
	tx := &Transaction{
		Inputs:  append([]Input(nil), inputs...),
		Outputs: append([]Output(nil), outputs...),
	}
	return build(state, tx, keys)
}

// build() assigns the spending counters, witnesses every input with its key and checks the result against the
// snapshot the fragment is tagged with
func build(state *State, tx *Transaction, keys []*crypto.KeyGroup) (*Fragment, lib.ErrorI) {
	// assign counters and check balances account by account
	running := make(map[string]Account)
	for i := range tx.Inputs {
		key := tx.Inputs[i].Address.String()
		acc, ok := running[key]
		if !ok {
			acc = state.accounts[key]
		}
		if acc.Value < tx.Inputs[i].Value {
			return nil, lib.ErrInsufficientFunds(tx.Inputs[i].Value, acc.Value)
		}
		tx.Inputs[i].SpendingCounter = acc.Counter
		acc.Value -= tx.Inputs[i].Value
		acc.Counter++
		running[key] = acc
	}
	// sign the body once per input
	body := tx.Body()
	f := &Fragment{StateID: state.ID(), Transaction: tx, Witnesses: make([]Witness, len(tx.Inputs))}
	for i, input := range tx.Inputs {
		f.Witnesses[i] = Witness{
			PublicKey: keys[i].PublicKey.Bytes(),
			Signature: keys[i].PrivateKey.Sign(signData(state.genesisHash, input.SpendingCounter, body)),
		}
	}
	// a built fragment is valid against exactly the snapshot it was built from
	if err := state.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

// ownsAddress() reports whether the public key is the spending key of the address
func ownsAddress(pub crypto.PublicKeyI, address *crypto.Address) bool {
	if pub == nil || !pub.Scheme().IsEd25519() || address.Kind == crypto.Multisig {
		return false
	}
	return bytes.Equal(pub.Bytes(), address.Spending)
}
