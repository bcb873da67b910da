package lib

import (
	"errors"
	"fmt"
	"math"
)

type ErrorI interface {
	Code() ErrorCode     // Returns the error code
	Module() ErrorModule // Returns the error module
	error                // Implements the built-in error interface
}

var _ ErrorI = &Error{} // Ensures *Error implements ErrorI

type ErrorCode uint32 // Defines a type for error codes

type ErrorModule string // Defines a type for error modules

type Error struct {
	ECode   ErrorCode   `json:"code"`   // Error code
	EModule ErrorModule `json:"module"` // Error module
	Msg     string      `json:"msg"`    // Error message
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	// Constructs a new Error instance
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns module field
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

// Is() allows errors.Is to match two errors by module and code
func (p *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.ECode == p.ECode && t.EModule == p.EModule
}

// IsModule() reports whether any error in the chain of err belongs to the module
func IsModule(err error, module ErrorModule) bool {
	var e ErrorI
	if !errors.As(err, &e) {
		return false
	}
	return e.Module() == module
}

// HasCode() reports whether any error in the chain of err carries the module and code
func HasCode(err error, module ErrorModule, code ErrorCode) bool {
	return errors.Is(err, NewError(code, module, ""))
}

// Retryable() classifies errors by module: startup and network failures may be retried,
// construction and consistency failures are final
func Retryable(err error) bool {
	return IsModule(err, StartupModule) || IsModule(err, NetworkModule)
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	// Main Module Error Codes
	CodeJSONMarshal     ErrorCode = 1
	CodeJSONUnmarshal   ErrorCode = 2
	CodeMarshal         ErrorCode = 3
	CodeUnmarshal       ErrorCode = 4
	CodeWriteFile       ErrorCode = 5
	CodeReadFile        ErrorCode = 6
	CodeInvalidArgument ErrorCode = 7
	CodeStringToBytes   ErrorCode = 8
	CodeYAMLUnmarshal   ErrorCode = 9
	CodeServerTimeout   ErrorCode = 10
	CodePanic           ErrorCode = 11
	CodeInvalidConfig   ErrorCode = 12

	// Crypto Module
	CryptoModule ErrorModule = "crypto"

	// Crypto Module Error Codes
	CodeKeyGeneration     ErrorCode = 1
	CodeUnknownScheme     ErrorCode = 2
	CodeEncoding          ErrorCode = 3
	CodeDecoding          ErrorCode = 4
	CodeInvalidPublicKey  ErrorCode = 5
	CodeInvalidPrivateKey ErrorCode = 6
	CodeEncryption        ErrorCode = 7
	CodeDecryption        ErrorCode = 8

	// Construction Module (ledger building and validation, never retried)
	ConstructionModule ErrorModule = "construction"

	// Construction Module Error Codes
	CodeInsufficientFunds      ErrorCode = 1
	CodeInvalidSignature       ErrorCode = 2
	CodeUnknownAccount         ErrorCode = 3
	CodeNoInputs               ErrorCode = 4
	CodeNoOutputs              ErrorCode = 5
	CodeInvalidValue           ErrorCode = 6
	CodeMissingWitness         ErrorCode = 7
	CodeWrongSpendingCounter   ErrorCode = 8
	CodeWrongState             ErrorCode = 9
	CodeUnknownCertificate     ErrorCode = 10
	CodeInvalidCertificate     ErrorCode = 11
	CodePoolExists             ErrorCode = 12
	CodePoolNotFound           ErrorCode = 13
	CodeVotePlanExists         ErrorCode = 14
	CodeVotePlanNotFound       ErrorCode = 15
	CodeDuplicateFragment      ErrorCode = 16
	CodeInvalidGenesis         ErrorCode = 17
	CodeFragmentDecode         ErrorCode = 18
	CodeVoteOutsideWindow      ErrorCode = 19
	CodeInvalidChoice          ErrorCode = 20
	CodeFeeTooLow              ErrorCode = 21
	CodeUnknownFragmentKind    ErrorCode = 22
	CodeDiscriminationMismatch ErrorCode = 23

	// Topology Module
	TopologyModule ErrorModule = "topology"

	// Topology Module Error Codes
	CodeInvalidNodeCount ErrorCode = 1
	CodeUnknownNode      ErrorCode = 2
	CodeInvalidDegree    ErrorCode = 3
	CodeSelfLoop         ErrorCode = 4
	CodeEdgeExists       ErrorCode = 5
	CodeEdgeNotFound     ErrorCode = 6
	CodeNodeExists       ErrorCode = 7
	CodeUnknownStrategy  ErrorCode = 8

	// Startup Module (retried with backoff up to a bound)
	StartupModule ErrorModule = "startup"

	// Startup Module Error Codes
	CodeLaunch                 ErrorCode = 1
	CodeStartupTimeout         ErrorCode = 2
	CodeStartAttemptsExhausted ErrorCode = 3
	CodeAlreadyStarted         ErrorCode = 4

	// Node Module
	NodeModule ErrorModule = "node"

	// Node Module Error Codes
	CodeHandleInvalid      ErrorCode = 1
	CodeInvalidTransition  ErrorCode = 2
	CodeProcessSignal      ErrorCode = 3
	CodeProcessNotReleased ErrorCode = 4
	CodeUnknownAlias       ErrorCode = 5
	CodeUnknownLauncher    ErrorCode = 6
	CodeNodePaused         ErrorCode = 7

	// Network Module (queries retried, submissions not)
	NetworkModule ErrorModule = "network"

	// Network Module Error Codes
	CodePostRequest  ErrorCode = 1
	CodeGetRequest   ErrorCode = 2
	CodeReadBody     ErrorCode = 3
	CodeHttpStatus   ErrorCode = 4
	CodeConnRefused  ErrorCode = 5
	CodeHealthCheck  ErrorCode = 6
	CodeGossip       ErrorCode = 7
	CodeNodeNotFound ErrorCode = 8

	// Timeout Module
	TimeoutModule ErrorModule = "timeout"

	// Timeout Module Error Codes
	CodeFragmentTimeout ErrorCode = 1
	CodeWaitTimeout     ErrorCode = 2

	// Consistency Module (always surfaced)
	ConsistencyModule ErrorModule = "consistency"

	// Consistency Module Error Codes
	CodeDivergence   ErrorCode = 1
	CodeEmptyNetwork ErrorCode = 2

	// Scenario Module
	ScenarioModule ErrorModule = "scenario"

	// Scenario Module Error Codes
	CodeUnknownStep       ErrorCode = 1
	CodeUnknownDependency ErrorCode = 2
	CodeDependencyCycle   ErrorCode = 3
	CodeDuplicateStep     ErrorCode = 4
	CodeStepFailed        ErrorCode = 5
	CodeDependencyFailed  ErrorCode = 6
	CodeInvalidScenario   ErrorCode = 7
	CodeUnknownFragment   ErrorCode = 8
	CodeUnexpectedOutcome ErrorCode = 9

	// Mempool Module
	MempoolModule ErrorModule = "mempool"

	// Mempool Module Error Codes
	CodeMaxFragmentSize ErrorCode = 1
	CodeFragmentInPool  ErrorCode = 2
	CodePoolFull        ErrorCode = 3

	// Store Module
	StoreModule ErrorModule = "store"

	// Store Module Error Codes
	CodeOpenDB   ErrorCode = 1
	CodeStoreSet ErrorCode = 2
	CodeStoreGet ErrorCode = 3
	CodeCloseDB  ErrorCode = 4
)

// main

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("json.marshal() failed with err: %s", err.Error()))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("json.unmarshal() failed with err: %s", err.Error()))
}

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err.Error()))
}

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err.Error()))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err.Error()))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err.Error()))
}

func ErrInvalidArgument() ErrorI {
	return NewError(CodeInvalidArgument, MainModule, "the argument is invalid")
}

func ErrStringToBytes(err error) ErrorI {
	return NewError(CodeStringToBytes, MainModule, fmt.Sprintf("stringToBytes() failed with err: %s", err.Error()))
}

func ErrYAMLUnmarshal(err error) ErrorI {
	return NewError(CodeYAMLUnmarshal, MainModule, fmt.Sprintf("yaml.unmarshal() failed with err: %s", err.Error()))
}

func ErrServerTimeout() ErrorI {
	return NewError(CodeServerTimeout, MainModule, "server timeout")
}

func ErrPanic() ErrorI {
	return NewError(CodePanic, MainModule, "panic recovery")
}

func ErrInvalidConfig(reason string) ErrorI {
	return NewError(CodeInvalidConfig, MainModule, fmt.Sprintf("invalid config: %s", reason))
}

// crypto

func ErrKeyGeneration(err error) ErrorI {
	return NewError(CodeKeyGeneration, CryptoModule, fmt.Sprintf("key generation failed with err: %s", err.Error()))
}

func ErrUnknownScheme(scheme string) ErrorI {
	return NewError(CodeUnknownScheme, CryptoModule, fmt.Sprintf("unknown signature scheme: %s", scheme))
}

// ErrEncoding is the EncodingError for unsupported address combinations
func ErrEncoding(reason string) ErrorI {
	return NewError(CodeEncoding, CryptoModule, fmt.Sprintf("address encoding failed: %s", reason))
}

func ErrDecoding(reason string) ErrorI {
	return NewError(CodeDecoding, CryptoModule, fmt.Sprintf("address decoding failed: %s", reason))
}

func ErrInvalidPublicKey(err error) ErrorI {
	return NewError(CodeInvalidPublicKey, CryptoModule, fmt.Sprintf("invalid public key: %s", err.Error()))
}

func ErrInvalidPrivateKey(err error) ErrorI {
	return NewError(CodeInvalidPrivateKey, CryptoModule, fmt.Sprintf("invalid private key: %s", err.Error()))
}

func ErrEncryption(err error) ErrorI {
	return NewError(CodeEncryption, CryptoModule, fmt.Sprintf("encryption failed with err: %s", err.Error()))
}

func ErrDecryption(err error) ErrorI {
	return NewError(CodeDecryption, CryptoModule, fmt.Sprintf("decryption failed with err: %s", err.Error()))
}

// construction

func ErrInsufficientFunds(need, have uint64) ErrorI {
	return NewError(CodeInsufficientFunds, ConstructionModule, fmt.Sprintf("insufficient funds: need %d, have %d", need, have))
}

func ErrInvalidSignature(index int) ErrorI {
	return NewError(CodeInvalidSignature, ConstructionModule, fmt.Sprintf("invalid signature for input %d", index))
}

func ErrUnknownAccount(account string) ErrorI {
	return NewError(CodeUnknownAccount, ConstructionModule, fmt.Sprintf("unknown account: %s", account))
}

func ErrNoInputs() ErrorI {
	return NewError(CodeNoInputs, ConstructionModule, "transaction has no inputs")
}

func ErrNoOutputs() ErrorI {
	return NewError(CodeNoOutputs, ConstructionModule, "transaction has no outputs")
}

func ErrInvalidValue() ErrorI {
	return NewError(CodeInvalidValue, ConstructionModule, "value is zero or overflows")
}

func ErrMissingWitness(index int) ErrorI {
	return NewError(CodeMissingWitness, ConstructionModule, fmt.Sprintf("missing witness for input %d", index))
}

func ErrWrongSpendingCounter(account string, expected, got uint32) ErrorI {
	return NewError(CodeWrongSpendingCounter, ConstructionModule,
		fmt.Sprintf("wrong spending counter for %s: expected %d, got %d", account, expected, got))
}

func ErrWrongState(expected, got string) ErrorI {
	return NewError(CodeWrongState, ConstructionModule, fmt.Sprintf("fragment built against state %s, validating against %s", got, expected))
}

func ErrUnknownCertificate(kind string) ErrorI {
	return NewError(CodeUnknownCertificate, ConstructionModule, fmt.Sprintf("unknown certificate kind: %s", kind))
}

func ErrInvalidCertificate(reason string) ErrorI {
	return NewError(CodeInvalidCertificate, ConstructionModule, fmt.Sprintf("invalid certificate: %s", reason))
}

func ErrPoolExists(id string) ErrorI {
	return NewError(CodePoolExists, ConstructionModule, fmt.Sprintf("stake pool %s already registered", id))
}

func ErrPoolNotFound(id string) ErrorI {
	return NewError(CodePoolNotFound, ConstructionModule, fmt.Sprintf("stake pool %s not found", id))
}

func ErrVotePlanExists(id string) ErrorI {
	return NewError(CodeVotePlanExists, ConstructionModule, fmt.Sprintf("vote plan %s already exists", id))
}

func ErrVotePlanNotFound(id string) ErrorI {
	return NewError(CodeVotePlanNotFound, ConstructionModule, fmt.Sprintf("vote plan %s not found", id))
}

func ErrDuplicateFragment(id string) ErrorI {
	return NewError(CodeDuplicateFragment, ConstructionModule, fmt.Sprintf("fragment %s already applied", id))
}

func ErrInvalidGenesis(reason string) ErrorI {
	return NewError(CodeInvalidGenesis, ConstructionModule, fmt.Sprintf("invalid genesis: %s", reason))
}

func ErrFragmentDecode(err error) ErrorI {
	return NewError(CodeFragmentDecode, ConstructionModule, fmt.Sprintf("fragment decoding failed with err: %s", err.Error()))
}

func ErrVoteOutsideWindow(plan string) ErrorI {
	return NewError(CodeVoteOutsideWindow, ConstructionModule, fmt.Sprintf("vote cast outside the voting window of plan %s", plan))
}

func ErrInvalidChoice(choice, options uint32) ErrorI {
	return NewError(CodeInvalidChoice, ConstructionModule, fmt.Sprintf("choice %d is not among %d options", choice, options))
}

func ErrFeeTooLow(fee, minimum uint64) ErrorI {
	return NewError(CodeFeeTooLow, ConstructionModule, fmt.Sprintf("fee %d is below the minimum %d", fee, minimum))
}

func ErrUnknownFragmentKind(kind uint32) ErrorI {
	return NewError(CodeUnknownFragmentKind, ConstructionModule, fmt.Sprintf("unknown fragment kind %d", kind))
}

func ErrDiscriminationMismatch() ErrorI {
	return NewError(CodeDiscriminationMismatch, ConstructionModule, "address discrimination does not match the ledger")
}

// topology

func ErrInvalidNodeCount(n int) ErrorI {
	return NewError(CodeInvalidNodeCount, TopologyModule, fmt.Sprintf("invalid node count: %d", n))
}

func ErrUnknownNode(id int64) ErrorI {
	return NewError(CodeUnknownNode, TopologyModule, fmt.Sprintf("unknown node: %d", id))
}

func ErrInvalidDegree(k, n int) ErrorI {
	return NewError(CodeInvalidDegree, TopologyModule, fmt.Sprintf("no %d-regular graph exists on %d nodes", k, n))
}

func ErrSelfLoop(id int64) ErrorI {
	return NewError(CodeSelfLoop, TopologyModule, fmt.Sprintf("self loop on node %d", id))
}

func ErrEdgeExists(a, b int64) ErrorI {
	return NewError(CodeEdgeExists, TopologyModule, fmt.Sprintf("edge %d-%d already exists", a, b))
}

func ErrEdgeNotFound(a, b int64) ErrorI {
	return NewError(CodeEdgeNotFound, TopologyModule, fmt.Sprintf("edge %d-%d not found", a, b))
}

func ErrNodeExists(id int64) ErrorI {
	return NewError(CodeNodeExists, TopologyModule, fmt.Sprintf("node %d already exists", id))
}

func ErrUnknownStrategy(s string) ErrorI {
	return NewError(CodeUnknownStrategy, TopologyModule, fmt.Sprintf("unknown topology strategy: %s", s))
}

// startup

func ErrLaunch(alias string, err error) ErrorI {
	return NewError(CodeLaunch, StartupModule, fmt.Sprintf("launch of %s failed with err: %s", alias, err.Error()))
}

func ErrStartupTimeout(alias string) ErrorI {
	return NewError(CodeStartupTimeout, StartupModule, fmt.Sprintf("node %s did not become healthy before the startup timeout", alias))
}

func ErrStartAttemptsExhausted(alias string, attempts int, err error) ErrorI {
	return NewError(CodeStartAttemptsExhausted, StartupModule,
		fmt.Sprintf("node %s failed to start after %d attempts, last err: %s", alias, attempts, err.Error()))
}

func ErrAlreadyStarted(alias string) ErrorI {
	return NewError(CodeAlreadyStarted, StartupModule, fmt.Sprintf("node %s is already started", alias))
}

// node

func ErrHandleInvalid(alias string) ErrorI {
	return NewError(CodeHandleInvalid, NodeModule, fmt.Sprintf("handle for %s is invalid, node was stopped", alias))
}

func ErrInvalidTransition(from, to string) ErrorI {
	return NewError(CodeInvalidTransition, NodeModule, fmt.Sprintf("invalid node state transition %s -> %s", from, to))
}

func ErrProcessSignal(err error) ErrorI {
	return NewError(CodeProcessSignal, NodeModule, fmt.Sprintf("failed to signal process: %s", err.Error()))
}

func ErrProcessNotReleased(pid int) ErrorI {
	return NewError(CodeProcessNotReleased, NodeModule, fmt.Sprintf("process %d is still running", pid))
}

func ErrUnknownAlias(alias string) ErrorI {
	return NewError(CodeUnknownAlias, NodeModule, fmt.Sprintf("unknown node alias: %s", alias))
}

func ErrUnknownLauncher(kind string) ErrorI {
	return NewError(CodeUnknownLauncher, NodeModule, fmt.Sprintf("unknown launcher: %s", kind))
}

func ErrNodePaused(alias string) ErrorI {
	return NewError(CodeNodePaused, NodeModule, fmt.Sprintf("node %s is paused", alias))
}

// network

func ErrPostRequest(err error) ErrorI {
	return NewError(CodePostRequest, NetworkModule, fmt.Sprintf("http.Post() failed with err: %s", err.Error()))
}

func ErrGetRequest(err error) ErrorI {
	return NewError(CodeGetRequest, NetworkModule, fmt.Sprintf("http.Get() failed with err: %s", err.Error()))
}

func ErrReadBody(err error) ErrorI {
	return NewError(CodeReadBody, NetworkModule, fmt.Sprintf("io.ReadAll(http.ResponseBody) failed with err: %s", err.Error()))
}

func ErrHttpStatus(status string, statusCode int, body []byte) ErrorI {
	return NewError(CodeHttpStatus, NetworkModule, fmt.Sprintf("http response bad status %s with code %d and body %s", status, statusCode, body))
}

func ErrConnRefused(alias string) ErrorI {
	return NewError(CodeConnRefused, NetworkModule, fmt.Sprintf("connection to %s refused", alias))
}

func ErrHealthCheck(err error) ErrorI {
	return NewError(CodeHealthCheck, NetworkModule, fmt.Sprintf("health check failed with err: %s", err.Error()))
}

func ErrGossip(err error) ErrorI {
	return NewError(CodeGossip, NetworkModule, fmt.Sprintf("gossip failed with err: %s", err.Error()))
}

func ErrNodeNotFound(id int64) ErrorI {
	return NewError(CodeNodeNotFound, NetworkModule, fmt.Sprintf("node %d is not attached to the fabric", id))
}

// timeout

func ErrFragmentTimeout(id string, missing []string) ErrorI {
	return NewError(CodeFragmentTimeout, TimeoutModule, fmt.Sprintf("fragment %s not observed by %v before the deadline", id, missing))
}

func ErrWaitTimeout(what string) ErrorI {
	return NewError(CodeWaitTimeout, TimeoutModule, fmt.Sprintf("timed out waiting for %s", what))
}

// consistency

func ErrDivergence(count int) ErrorI {
	return NewError(CodeDivergence, ConsistencyModule, fmt.Sprintf("%d divergences between nodes", count))
}

func ErrEmptyNetwork() ErrorI {
	return NewError(CodeEmptyNetwork, ConsistencyModule, "no nodes to compare")
}

// scenario

func ErrUnknownStep(kind string) ErrorI {
	return NewError(CodeUnknownStep, ScenarioModule, fmt.Sprintf("unknown step kind: %s", kind))
}

func ErrUnknownDependency(step, dep string) ErrorI {
	return NewError(CodeUnknownDependency, ScenarioModule, fmt.Sprintf("step %s depends on unknown step %s", step, dep))
}

func ErrDependencyCycle(step string) ErrorI {
	return NewError(CodeDependencyCycle, ScenarioModule, fmt.Sprintf("dependency cycle through step %s", step))
}

func ErrDuplicateStep(step string) ErrorI {
	return NewError(CodeDuplicateStep, ScenarioModule, fmt.Sprintf("duplicate step name: %s", step))
}

func ErrStepFailed(step string, err error) ErrorI {
	return NewError(CodeStepFailed, ScenarioModule, fmt.Sprintf("step %s failed with err: %s", step, err.Error()))
}

func ErrDependencyFailed(step, dep string) ErrorI {
	return NewError(CodeDependencyFailed, ScenarioModule, fmt.Sprintf("step %s skipped, dependency %s failed", step, dep))
}

func ErrInvalidScenario(reason string) ErrorI {
	return NewError(CodeInvalidScenario, ScenarioModule, fmt.Sprintf("invalid scenario: %s", reason))
}

func ErrUnknownFragment(name string) ErrorI {
	return NewError(CodeUnknownFragment, ScenarioModule, fmt.Sprintf("no fragment registered under %s", name))
}

func ErrUnexpectedOutcome(expected, got string) ErrorI {
	return NewError(CodeUnexpectedOutcome, ScenarioModule, fmt.Sprintf("expected outcome %s, got %s", expected, got))
}

// mempool

func ErrMaxFragmentSize() ErrorI {
	return NewError(CodeMaxFragmentSize, MempoolModule, "max fragment size")
}

func ErrFragmentInPool(id string) ErrorI {
	return NewError(CodeFragmentInPool, MempoolModule, fmt.Sprintf("fragment %s already in the pool", id))
}

func ErrPoolFull() ErrorI {
	return NewError(CodePoolFull, MempoolModule, "fragment pool is full")
}

// store

func ErrOpenDB(err error) ErrorI {
	return NewError(CodeOpenDB, StoreModule, fmt.Sprintf("openDB() failed with err: %s", err.Error()))
}

func ErrStoreSet(err error) ErrorI {
	return NewError(CodeStoreSet, StoreModule, fmt.Sprintf("store.set() failed with err: %s", err.Error()))
}

func ErrStoreGet(err error) ErrorI {
	return NewError(CodeStoreGet, StoreModule, fmt.Sprintf("store.get() failed with err: %s", err.Error()))
}

func ErrCloseDB(err error) ErrorI {
	return NewError(CodeCloseDB, StoreModule, fmt.Sprintf("closeDB() failed with err: %s", err.Error()))
}
