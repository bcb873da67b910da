package lib

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

// MarshalJSON() serializes a message into a JSON byte slice
func MarshalJSON(message any) ([]byte, ErrorI) {
	bz, err := json.Marshal(message)
	if err != nil {
		return nil, ErrJSONMarshal(err)
	}
	return bz, nil
}

// MarshalJSONIndent() serializes a message into an indented JSON byte slice
func MarshalJSONIndent(message any) ([]byte, ErrorI) {
	bz, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return nil, ErrJSONMarshal(err)
	}
	return bz, nil
}

// MarshalJSONIndentString() serializes a message into an indented JSON string
func MarshalJSONIndentString(message any) (string, ErrorI) {
	bz, err := MarshalJSONIndent(message)
	return string(bz), err
}

// UnmarshalJSON() deserializes a JSON byte slice into the specified object
func UnmarshalJSON(bz []byte, ptr any) ErrorI {
	if err := json.Unmarshal(bz, ptr); err != nil {
		return ErrJSONUnmarshal(err)
	}
	return nil
}

// UnmarshalYAML() deserializes a YAML byte slice into the specified object
func UnmarshalYAML(bz []byte, ptr any) ErrorI {
	if err := yaml.Unmarshal(bz, ptr); err != nil {
		return ErrYAMLUnmarshal(err)
	}
	return nil
}

// NewObjectFromFile() reads a json or yaml object from file, choosing the decoder by extension
func NewObjectFromFile(ptr any, path string) ErrorI {
	bz, err := os.ReadFile(path)
	if err != nil {
		return ErrReadFile(err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return UnmarshalYAML(bz, ptr)
	default:
		return UnmarshalJSON(bz, ptr)
	}
}

// SaveJSONToFile() saves a json object to a file
func SaveJSONToFile(j any, dataDirPath, filePath string) (err ErrorI) {
	bz, err := MarshalJSONIndent(j)
	if err != nil {
		return
	}
	if e := os.MkdirAll(dataDirPath, os.ModePerm); e != nil {
		return ErrWriteFile(e)
	}
	if e := os.WriteFile(filepath.Join(dataDirPath, filePath), bz, os.ModePerm); e != nil {
		return ErrWriteFile(e)
	}
	return
}

// BytesToString() converts a byte slice to a hexadecimal string
func BytesToString(b []byte) string {
	return hex.EncodeToString(b)
}

// StringToBytes() converts a hexadecimal string back into a byte slice
func StringToBytes(s string) ([]byte, ErrorI) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrStringToBytes(err)
	}
	return b, nil
}

// BytesToTruncatedString() converts a byte slice to a hexadecimal string truncated to 10 characters
func BytesToTruncatedString(b []byte) string {
	s := BytesToString(b)
	if len(s) <= 10 {
		return s
	}
	return s[:10]
}

// HexBytes represents a byte slice that can be marshaled and unmarshalled as hex strings
type HexBytes []byte

// NewHexBytesFromString() converts a hexadecimal string into HexBytes
func NewHexBytesFromString(s string) (HexBytes, ErrorI) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrJSONUnmarshal(err)
	}
	return bz, nil
}

// String() returns the HexBytes as a hexadecimal string
func (x HexBytes) String() string {
	return BytesToString(x)
}

// MarshalJSON() serializes the HexBytes to a JSON byte slice
func (x HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(BytesToString(x))
}

// UnmarshalJSON() deserializes a JSON byte slice into HexBytes
func (x *HexBytes) UnmarshalJSON(b []byte) (err error) {
	var s string
	if err = json.Unmarshal(b, &s); err != nil {
		return err
	}
	*x, err = StringToBytes(s)
	return
}

// MarshalYAML() serializes the HexBytes as a hex string
func (x HexBytes) MarshalYAML() (interface{}, error) {
	return BytesToString(x), nil
}

// UnmarshalYAML() deserializes a hex string node into HexBytes
func (x *HexBytes) UnmarshalYAML(node *yaml.Node) (err error) {
	var s string
	if err = node.Decode(&s); err != nil {
		return err
	}
	*x, err = StringToBytes(s)
	return
}

// CatchPanic() catches any panic in the function call or child function calls
func CatchPanic(l LoggerI) {
	if r := recover(); r != nil {
		l.Errorf(string(debug.Stack()))
	}
}

// JoinLenPrefix() appends the items together separated by a single byte to represent the length of the segment
func JoinLenPrefix(toAppend ...[]byte) (res []byte) {
	for _, item := range toAppend {
		if item == nil {
			continue
		}
		// store the length of the segment in a single byte
		length := []byte{byte(len(item))}
		// append to the rest of the segment
		res = append(append(res, length...), item...)
	}
	return
}

// RetryConfig bounds a backoff retry loop
type RetryConfig struct {
	Initial    time.Duration // first wait
	Max        time.Duration // cap of a single wait
	MaxRetries uint64        // number of retries after the first attempt
}

// Retry() runs op until it succeeds, returns a non retryable error, the retries are exhausted or ctx is done.
// Errors are retried only when Retryable() classifies them as transient
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if cfg.Initial > 0 {
		b.InitialInterval = cfg.Initial
	}
	if cfg.Max > 0 {
		b.MaxInterval = cfg.Max
	}
	b.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx))
}

// TruncateSlice() safely ensures that a slice doesn't exceed the max size
func TruncateSlice[T any](slice []T, max int) []T {
	if slice == nil {
		return nil
	}
	if len(slice) > max {
		return slice[:max]
	}
	return slice
}

// DeDuplicator is a generic structure that serves as a simple anti-duplication check
type DeDuplicator[T comparable] struct {
	m map[T]struct{}
}

// NewDeDuplicator constructs a new object reference to a DeDuplicator
func NewDeDuplicator[T comparable]() *DeDuplicator[T] {
	return &DeDuplicator[T]{m: make(map[T]struct{})}
}

// Found checks for an existing entry and adds it to the map if it's not present
func (d *DeDuplicator[T]) Found(k T) bool {
	if _, exists := d.m[k]; exists {
		return true
	}
	d.m[k] = struct{}{}
	return false
}
