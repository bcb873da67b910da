package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"math/bits"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/codec"
	"github.com/canopy-network/mocknet/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

/*
	A Fragment is the atomic, signed unit of ledger change. Every fragment is a transaction; certificates ride
	inside the transaction that pays their fee. Fragments are immutable once built: the id is the blake2b-256
	hash of the canonical protobuf wire encoding, so the same content always yields the same id

	wire layout
	  Fragment    { 1: state_id bytes, 2: transaction Transaction, 3: witnesses repeated Witness }
	  Transaction { 1: inputs repeated Input, 2: outputs repeated Output, 3: certificate Envelope }
	  Input       { 1: address bytes, 2: value uint64, 3: spending_counter uint32 }
	  Output      { 1: address bytes, 2: value uint64 }
	  Witness     { 1: public_key bytes, 2: signature bytes }
	  Envelope    { 1: kind uint32, 2: payload bytes }
*/

// FragmentID is the hex content hash of a fragment
type FragmentID string

// Input spends value from an account; the spending counter orders spends from the same account
type Input struct {
	Address         *crypto.Address `json:"address"`
	Value           uint64          `json:"value"`
	SpendingCounter uint32          `json:"spendingCounter"`
}

// Output credits value to an address
type Output struct {
	Address *crypto.Address `json:"address"`
	Value   uint64          `json:"value"`
}

// Witness proves ownership of the input at the same index
type Witness struct {
	PublicKey lib.HexBytes `json:"publicKey"`
	Signature lib.HexBytes `json:"signature"`
}

// Transaction is the signed body of a fragment
type Transaction struct {
	Inputs      []Input      `json:"inputs"`
	Outputs     []Output     `json:"outputs"`
	Certificate CertificateI `json:"certificate,omitempty"`
}

// Fragment is a transaction plus the witnesses of its inputs, tagged with the snapshot it was built against
type Fragment struct {
	StateID     lib.HexBytes `json:"stateID"`
	Transaction *Transaction `json:"transaction"`
	Witnesses   []Witness    `json:"witnesses"`
}

// Kind() returns the certificate kind, or KindTransaction for plain transfers
func (f *Fragment) Kind() FragmentKind {
	if f.Transaction != nil && f.Transaction.Certificate != nil {
		return f.Transaction.Certificate.Kind()
	}
	return KindTransaction
}

// Bytes() returns the canonical encoding of the fragment
func (f *Fragment) Bytes() []byte { return codec.Marshal(f) }

// ID() returns the content hash of the fragment
func (f *Fragment) ID() FragmentID { return FragmentID(hex.EncodeToString(crypto.Blake2b256(f.Bytes()))) }

// Size() returns the encoded length in bytes
func (f *Fragment) Size() int { return len(f.Bytes()) }

// Fee() returns the value consumed by the fragment (inputs minus outputs); zero when outputs exceed inputs
func (f *Fragment) Fee() uint64 {
	in, okIn := sumInputs(f.Transaction.Inputs)
	out, okOut := sumOutputs(f.Transaction.Outputs)
	if !okIn || !okOut || out > in {
		return 0
	}
	return in - out
}

// BuiltAgainst() reports whether the fragment was constructed from the snapshot
func (f *Fragment) BuiltAgainst(s *State) bool { return string(f.StateID) == string(s.ID()) }

// DecodeFragment() parses the canonical encoding
func DecodeFragment(bz []byte) (*Fragment, lib.ErrorI) {
	f := new(Fragment)
	if err := codec.Unmarshal(bz, f); err != nil {
		return nil, lib.ErrFragmentDecode(err)
	}
	if f.Transaction == nil {
		f.Transaction = new(Transaction)
	}
	return f, nil
}

// DecodeFragmentHex() parses the hex form used on the REST interface
func DecodeFragmentHex(s string) (*Fragment, lib.ErrorI) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, lib.ErrFragmentDecode(err)
	}
	return DecodeFragment(bz)
}

// signData() is the message every witness signs: genesis hash || spending counter || transaction body
func signData(genesisHash []byte, counter uint32, body []byte) []byte {
	msg := make([]byte, 0, len(genesisHash)+4+len(body))
	msg = append(msg, genesisHash...)
	msg = binary.BigEndian.AppendUint32(msg, counter)
	return append(msg, body...)
}

// MarshalWire() implements codec.BinaryCodec
func (f *Fragment) MarshalWire(e *codec.Encoder) {
	e.Bytes(1, f.StateID)
	if f.Transaction != nil {
		e.Message(2, f.Transaction)
	}
	for i := range f.Witnesses {
		e.Message(3, &f.Witnesses[i])
	}
}

// UnmarshalWire() implements codec.BinaryCodec
func (f *Fragment) UnmarshalWire(field codec.Field) error {
	switch field.Num {
	case 1:
		f.StateID = field.Clone()
	case 2:
		f.Transaction = new(Transaction)
		return codec.Unmarshal(field.Bytes, f.Transaction)
	case 3:
		w := Witness{}
		if err := codec.Unmarshal(field.Bytes, &w); err != nil {
			return err
		}
		f.Witnesses = append(f.Witnesses, w)
	}
	return nil
}

// MarshalWire() implements codec.BinaryCodec
func (t *Transaction) MarshalWire(e *codec.Encoder) {
	for i := range t.Inputs {
		e.Message(1, &t.Inputs[i])
	}
	for i := range t.Outputs {
		e.Message(2, &t.Outputs[i])
	}
	if t.Certificate != nil {
		e.Message(3, &envelope{certificate: t.Certificate})
	}
}

// UnmarshalWire() implements codec.BinaryCodec
func (t *Transaction) UnmarshalWire(field codec.Field) error {
	switch field.Num {
	case 1:
		in := Input{}
		if err := codec.Unmarshal(field.Bytes, &in); err != nil {
			return err
		}
		t.Inputs = append(t.Inputs, in)
	case 2:
		out := Output{}
		if err := codec.Unmarshal(field.Bytes, &out); err != nil {
			return err
		}
		t.Outputs = append(t.Outputs, out)
	case 3:
		env := new(envelope)
		if err := codec.Unmarshal(field.Bytes, env); err != nil {
			return err
		}
		c, err := env.decode()
		if err != nil {
			return err
		}
		t.Certificate = c
	}
	return nil
}

// Body() returns the bytes witnesses sign over
func (t *Transaction) Body() []byte { return codec.Marshal(t) }

// MarshalWire() implements codec.BinaryCodec
func (in *Input) MarshalWire(e *codec.Encoder) {
	if in.Address != nil {
		e.Bytes(1, in.Address.Bytes())
	}
	e.Uvarint(2, in.Value)
	e.Uvarint(3, uint64(in.SpendingCounter))
}

// UnmarshalWire() implements codec.BinaryCodec
func (in *Input) UnmarshalWire(field codec.Field) (err error) {
	switch field.Num {
	case 1:
		in.Address, err = decodeAddress(field)
	case 2:
		in.Value = field.Value
	case 3:
		in.SpendingCounter = uint32(field.Value)
	}
	return
}

// MarshalWire() implements codec.BinaryCodec
func (o *Output) MarshalWire(e *codec.Encoder) {
	if o.Address != nil {
		e.Bytes(1, o.Address.Bytes())
	}
	e.Uvarint(2, o.Value)
}

// UnmarshalWire() implements codec.BinaryCodec
func (o *Output) UnmarshalWire(field codec.Field) (err error) {
	switch field.Num {
	case 1:
		o.Address, err = decodeAddress(field)
	case 2:
		o.Value = field.Value
	}
	return
}

// MarshalWire() implements codec.BinaryCodec
func (w *Witness) MarshalWire(e *codec.Encoder) {
	e.Bytes(1, w.PublicKey)
	e.Bytes(2, w.Signature)
}

// UnmarshalWire() implements codec.BinaryCodec
func (w *Witness) UnmarshalWire(field codec.Field) error {
	switch field.Num {
	case 1:
		w.PublicKey = field.Clone()
	case 2:
		w.Signature = field.Clone()
	}
	return nil
}

// envelope tags a certificate payload with its kind
type envelope struct {
	certificate CertificateI
	kind        FragmentKind
	payload     []byte
}

func (env *envelope) MarshalWire(e *codec.Encoder) {
	e.Uvarint(1, uint64(env.certificate.Kind()))
	e.Bytes(2, codec.Marshal(env.certificate))
}

func (env *envelope) UnmarshalWire(field codec.Field) error {
	switch field.Num {
	case 1:
		env.kind = FragmentKind(field.Value)
	case 2:
		env.payload = field.Clone()
	}
	return nil
}

func (env *envelope) decode() (CertificateI, error) {
	c, err := NewCertificate(env.kind)
	if err != nil {
		return nil, err
	}
	if err := codec.Unmarshal(env.payload, c); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeAddress(field codec.Field) (*crypto.Address, error) {
	if field.Type != protowire.BytesType {
		return nil, lib.ErrDecoding("address field is not length delimited")
	}
	a, err := crypto.NewAddressFromBytes(field.Bytes)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// sumInputs() totals the inputs, reporting false on overflow
func sumInputs(inputs []Input) (total uint64, ok bool) {
	for _, in := range inputs {
		var carry uint64
		if total, carry = bits.Add64(total, in.Value, 0); carry != 0 {
			return 0, false
		}
	}
	return total, true
}

// sumOutputs() totals the outputs, reporting false on overflow
func sumOutputs(outputs []Output) (total uint64, ok bool) {
	for _, out := range outputs {
		var carry uint64
		if total, carry = bits.Add64(total, out.Value, 0); carry != 0 {
			return 0, false
		}
	}
	return total, true
}
