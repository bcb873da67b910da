package lib

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHexBytesJSON(t *testing.T) {
	type wrapper struct {
		Value HexBytes `json:"value" yaml:"value"`
	}
	expected := wrapper{Value: HexBytes{0xde, 0xad, 0xbe, 0xef}}
	bz, err := MarshalJSON(expected)
	require.NoError(t, err)
	require.Equal(t, `{"value":"deadbeef"}`, string(bz))
	got := wrapper{}
	require.NoError(t, UnmarshalJSON(bz, &got))
	require.Equal(t, expected, got)
	// yaml
	got = wrapper{}
	require.NoError(t, UnmarshalYAML([]byte("value: deadbeef\n"), &got))
	require.Equal(t, expected, got)
	// invalid
	require.Error(t, UnmarshalJSON([]byte(`{"value":"zz"}`), &got))
}

func TestSaveAndLoadObject(t *testing.T) {
	dir := t.TempDir()
	expected := map[string]uint64{"a": 1, "b": 2}
	require.NoError(t, SaveJSONToFile(expected, dir, "obj.json"))
	got := make(map[string]uint64)
	require.NoError(t, NewObjectFromFile(&got, filepath.Join(dir, "obj.json")))
	require.Equal(t, expected, got)
	err := NewObjectFromFile(&got, filepath.Join(dir, "missing.json"))
	require.True(t, HasCode(err, MainModule, CodeReadFile))
}

func TestJoinLenPrefix(t *testing.T) {
	got := JoinLenPrefix([]byte("ab"), nil, []byte("c"))
	require.Equal(t, []byte{2, 'a', 'b', 1, 'c'}, got)
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{Initial: time.Millisecond, Max: 2 * time.Millisecond, MaxRetries: 3}
	t.Run("transient errors are retried", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), cfg, func() error {
			attempts++
			if attempts < 3 {
				return ErrGetRequest(errors.New("connection reset"))
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})
	t.Run("bounded", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), cfg, func() error {
			attempts++
			return ErrGetRequest(errors.New("connection reset"))
		})
		require.True(t, HasCode(err, NetworkModule, CodeGetRequest))
		require.Equal(t, 4, attempts)
	})
	t.Run("construction errors are final", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), cfg, func() error {
			attempts++
			return ErrInsufficientFunds(10, 1)
		})
		require.True(t, HasCode(err, ConstructionModule, CodeInsufficientFunds))
		require.Equal(t, 1, attempts)
	})
}

func TestDeDuplicator(t *testing.T) {
	d := NewDeDuplicator[string]()
	require.False(t, d.Found("a"))
	require.True(t, d.Found("a"))
	require.False(t, d.Found("b"))
}
