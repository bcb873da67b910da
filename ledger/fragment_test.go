package ledger

import (
	"encoding/hex"
	"testing"

	"github.com/canopy-network/mocknet/lib"
	"github.com/stretchr/testify/require"
)

func TestFragmentEncoding(t *testing.T) {
	state, wallets := newTestLedger(t, 1000, 1000)
	a, b := wallets[0], wallets[1]
	transfer, err := a.Transfer(state, b.Address, 5)
	require.NoError(t, err)
	plan, err := a.ProposeVotePlan(state, BlockDate{}, BlockDate{Epoch: 2, Slot: 3}, []uint32{2, 0x80, 1}, 9)
	require.NoError(t, err)
	registration, err := b.RegisterPool(state, 7, 50)
	require.NoError(t, err)
	for _, f := range []*Fragment{transfer, plan, registration} {
		t.Run(f.Kind().String(), func(t *testing.T) {
			// decoding reproduces the exact bytes and therefore the id
			got, err := DecodeFragment(f.Bytes())
			require.NoError(t, err)
			require.Equal(t, f.ID(), got.ID())
			require.Equal(t, f.Kind(), got.Kind())
			require.Equal(t, f.Transaction.Certificate, got.Transaction.Certificate)
			// the decoded fragment is still valid
			require.NoError(t, state.Validate(got))
			// hex form used on the rest interface
			got, err = DecodeFragmentHex(hex.EncodeToString(f.Bytes()))
			require.NoError(t, err)
			require.Equal(t, f.ID(), got.ID())
			require.Equal(t, f.Size(), len(f.Bytes()))
		})
	}
	// distinct fragments have distinct ids
	require.NotEqual(t, transfer.ID(), registration.ID())
}

func TestDecodeFragmentErrors(t *testing.T) {
	tests := map[string][]byte{
		"invalid tag":       {0xff},
		"truncated bytes":   {0x0a, 0x05, 0x01},
		"unknown kind":      {0x12, 0x06, 0x1a, 0x04, 0x08, 0x63, 0x12, 0x00},
		"malformed address": {0x12, 0x05, 0x0a, 0x03, 0x0a, 0x01, 0xff},
	}
	for name, bz := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFragment(bz)
			require.True(t, lib.HasCode(err, lib.ConstructionModule, lib.CodeFragmentDecode), "got %v", err)
		})
	}
	_, err := DecodeFragmentHex("zz")
	require.True(t, lib.HasCode(err, lib.ConstructionModule, lib.CodeFragmentDecode))
}

func TestFragmentKinds(t *testing.T) {
	for _, kind := range FragmentKinds {
		parsed, ok := ParseFragmentKind(kind.String())
		require.True(t, ok)
		require.Equal(t, kind, parsed)
		require.Equal(t, kind != KindTransaction, kind.IsCertificate())
	}
	_, ok := ParseFragmentKind("unknown")
	require.False(t, ok)
}

func TestBlockDate(t *testing.T) {
	d := BlockDate{Epoch: 1, Slot: 59}
	require.Equal(t, BlockDate{Epoch: 2}, d.Next(60))
	require.Equal(t, BlockDate{Epoch: 1, Slot: 58}.Next(60), d)
	require.True(t, BlockDate{Epoch: 1, Slot: 2}.Before(BlockDate{Epoch: 2}))
	require.False(t, d.Before(d))
	parsed, err := ParseBlockDate(d.String())
	require.NoError(t, err)
	require.Equal(t, d, parsed)
	_, err = ParseBlockDate("1")
	require.Error(t, err)
}
