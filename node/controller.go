package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

/*
	The controller owns the lifecycle of every node: Configured -> Starting -> Running -> (Degraded | Stopping) -> Stopped.
	A start is retried with backoff up to MaxStartAttempts; a handle serializes its commands and becomes invalid once stopped
*/

// Controller starts nodes through a launcher and hands out their handles
type Controller struct {
	config   lib.NodeConfig
	launcher Launcher
	metrics  *lib.Metrics
	clock    clockwork.Clock
	log      lib.LoggerI
}

// NewController() creates a controller; metrics may be nil
func NewController(config lib.NodeConfig, launcher Launcher, metrics *lib.Metrics, log lib.LoggerI) *Controller {
	return &Controller{config: config, launcher: launcher, metrics: metrics, clock: clockwork.NewRealClock(), log: log}
}

// Launcher() returns the launcher the controller starts nodes with
func (c *Controller) Launcher() Launcher { return c.launcher }

// Start() launches the node and blocks until it is healthy, retrying failed attempts with backoff
func (c *Controller) Start(ctx context.Context, identity Identity, view View) (*Handle, lib.ErrorI) {
	h := &Handle{identity: identity, controller: c, state: Configured, log: lib.NamedLogger(c.log, identity.Alias)}
	if err := h.transition(Starting); err != nil {
		return nil, err
	}
	started, attempts := c.clock.Now(), 0
	retry := lib.RetryConfig{Initial: c.healthPoll(), Max: c.config.StartupTimeout(), MaxRetries: uint64(max(c.config.MaxStartAttempts, 1) - 1)}
	var last error
	err := lib.Retry(ctx, retry, func() error {
		attempts++
		process, err := c.attempt(ctx, identity, view)
		if err != nil {
			h.log.Warnf("Start attempt %d of %s failed: %s", attempts, identity.Alias, err.Error())
			last = err
			return err
		}
		h.process, h.client = process, process.Client()
		return nil
	})
	if err != nil {
		c.metrics.ObserveStart(0, err)
		h.state = Stopped
		if last == nil {
			// the context ended before the first attempt finished
			last = err
		}
		return nil, lib.ErrStartAttemptsExhausted(identity.Alias, attempts, last)
	}
	c.metrics.ObserveStart(c.clock.Since(started), nil)
	_ = h.transition(Running)
	go h.watch(h.process)
	h.log.Infof("Node %s is running", identity.Alias)
	return h, nil
}

// attempt() launches once and waits for the health endpoint, releasing the process on failure
func (c *Controller) attempt(ctx context.Context, identity Identity, view View) (Process, lib.ErrorI) {
	process, err := c.launcher.Launch(ctx, identity, view)
	if err != nil {
		return nil, err
	}
	if err = c.waitHealthy(ctx, identity.Alias, process); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), c.config.StopTimeout())
		defer cancel()
		if e := process.Stop(stopCtx); e != nil {
			c.log.Warnf("Releasing failed start of %s: %s", identity.Alias, e.Error())
		}
		process.Client().Close()
		return nil, err
	}
	return process, nil
}

// waitHealthy() polls the health endpoint until it answers or the startup timeout elapses
func (c *Controller) waitHealthy(ctx context.Context, alias string, process Process) lib.ErrorI {
	ctx, cancel := context.WithTimeout(ctx, c.config.StartupTimeout())
	defer cancel()
	poll := lib.RetryConfig{Initial: c.healthPoll(), Max: 10 * c.healthPoll(), MaxRetries: ^uint64(0)}
	err := lib.Retry(ctx, poll, func() error {
		select {
		case <-process.Exited():
			return backoff.Permanent(lib.ErrLaunch(alias, errors.New("process exited before becoming healthy")))
		default:
		}
		if e := process.Client().Health(ctx); e != nil {
			return e
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case lib.HasCode(err, lib.StartupModule, lib.CodeLaunch):
		return lib.ErrLaunch(alias, errors.New("process exited before becoming healthy"))
	default:
		return lib.ErrStartupTimeout(alias)
	}
}

// healthPoll() is the first health poll interval
func (c *Controller) healthPoll() time.Duration {
	if c.config.HealthPollMS == 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.config.HealthPollMS) * time.Millisecond
}

// query() is the retry policy of idempotent queries
func (c *Controller) query() lib.RetryConfig {
	return lib.RetryConfig{Initial: c.healthPoll(), Max: time.Second, MaxRetries: c.config.QueryRetries}
}

// Handle is the runtime binding of an identity to a live node
type Handle struct {
	identity   Identity
	controller *Controller
	log        lib.LoggerI

	mu      sync.Mutex // one command in flight
	state   State
	paused  bool
	process Process
	client  Client
}

// Identity() returns the identity the handle runs
func (h *Handle) Identity() Identity { return h.identity }

// Alias() returns the node alias
func (h *Handle) Alias() string { return h.identity.Alias }

// State() returns the lifecycle state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Paused() reports whether the node was frozen through this handle
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// SubmitFragment() sends a fragment once; an unreachable node yields a ConnRefused rejection
func (h *Handle) SubmitFragment(ctx context.Context, f *ledger.Fragment) (result rpc.SubmitResult, err lib.ErrorI) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err = h.valid(); err != nil {
		return
	}
	result, err = h.client.Submit(ctx, f.Bytes())
	if err != nil {
		h.log.Warnf("Submit of %s to %s failed: %s", f.ID(), h.identity.Alias, err.Error())
		h.degrade()
		result, err = rpc.SubmitResult{ID: f.ID(), Status: rpc.Rejected, Reason: rpc.ConnRefused, Message: err.Error()}, nil
	}
	h.controller.metrics.ObserveSubmission(result.String())
	return
}

// ChainTip() returns the tip of the node
func (h *Handle) ChainTip(ctx context.Context) (tip rpc.BlockID, err lib.ErrorI) {
	err = h.do(ctx, func() (e lib.ErrorI) { tip, e = h.client.Tip(ctx); return })
	return
}

// FragmentLogs() returns every fragment record of the node
func (h *Handle) FragmentLogs(ctx context.Context) (logs []rpc.FragmentLog, err lib.ErrorI) {
	err = h.do(ctx, func() (e lib.ErrorI) { logs, e = h.client.FragmentLogs(ctx); return })
	return
}

// FragmentLog() returns the record of one fragment
func (h *Handle) FragmentLog(ctx context.Context, id ledger.FragmentID) (l rpc.FragmentLog, found bool, err lib.ErrorI) {
	err = h.do(ctx, func() (e lib.ErrorI) { l, found, e = h.client.FragmentLog(ctx, id); return })
	return
}

// HasFragment() reports whether the node holds the fragment in its pool or in a block
func (h *Handle) HasFragment(ctx context.Context, id ledger.FragmentID) (bool, lib.ErrorI) {
	l, found, err := h.FragmentLog(ctx, id)
	if err != nil || !found {
		return false, err
	}
	return l.Status == rpc.StatusPending || l.Status == rpc.StatusInABlock, nil
}

// Stats() returns the node summary including the OS usage of external nodes
func (h *Handle) Stats(ctx context.Context) (stats rpc.NodeStats, err lib.ErrorI) {
	err = h.do(ctx, func() (e lib.ErrorI) { stats, e = h.client.Stats(ctx); return })
	if err == nil {
		stats.ProcessCPUPercent, stats.ProcessRSSBytes = h.process.Resources()
	}
	return
}

// Account() returns the balance view of an address on the node
func (h *Handle) Account(ctx context.Context, address string) (acc rpc.AccountState, err lib.ErrorI) {
	err = h.do(ctx, func() (e lib.ErrorI) { acc, e = h.client.Account(ctx, address); return })
	return
}

// Pause() freezes the node; it keeps its state and buffers gossip until resumed
func (h *Handle) Pause(ctx context.Context) lib.ErrorI {
	err := h.do(ctx, func() lib.ErrorI { return h.client.Pause(ctx) })
	if err == nil {
		h.setPaused(true)
	}
	return err
}

// Resume() unfreezes the node
func (h *Handle) Resume(ctx context.Context) lib.ErrorI {
	err := h.do(ctx, func() lib.ErrorI { return h.client.Resume(ctx) })
	if err == nil {
		h.setPaused(false)
	}
	return err
}

// Logs() returns the captured node output that passes the filter
func (h *Handle) Logs(filter lib.LogFilter) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.process == nil {
		return nil
	}
	return filter.Apply(h.process.Logs())
}

// Stop() gracefully releases the node. It is idempotent and releases resources even after an abnormal exit
func (h *Handle) Stop(ctx context.Context) lib.ErrorI {
	return h.release(func() lib.ErrorI {
		stopCtx, cancel := context.WithTimeout(ctx, h.controller.config.StopTimeout())
		defer cancel()
		return h.process.Stop(stopCtx)
	})
}

// Kill() terminates the node without a graceful shutdown
func (h *Handle) Kill() lib.ErrorI {
	return h.release(h.process.Kill)
}

// release() runs stop once and invalidates the handle whatever the outcome
func (h *Handle) release(stop func() lib.ErrorI) (err lib.ErrorI) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Stopped {
		return nil
	}
	h.state = Stopping
	defer func() {
		h.client.Close()
		h.state = Stopped
		h.controller.metrics.ObserveStop()
		h.log.Infof("Node %s stopped", h.identity.Alias)
	}()
	return stop()
}

// do() runs an idempotent query under the handle lock, retrying transient network errors
func (h *Handle) do(ctx context.Context, op func() lib.ErrorI) lib.ErrorI {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.valid(); err != nil {
		return err
	}
	err := lib.Retry(ctx, h.controller.query(), func() error {
		if e := op(); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		if lib.IsModule(err, lib.NetworkModule) {
			h.degrade()
		}
		if e, ok := err.(lib.ErrorI); ok {
			return e
		}
		return lib.ErrWaitTimeout(err.Error())
	}
	if h.state == Degraded {
		h.state = Running
	}
	return nil
}

// valid() fails once the handle was stopped; the caller holds the lock
func (h *Handle) valid() lib.ErrorI {
	if h.state == Stopping || h.state == Stopped {
		return lib.ErrHandleInvalid(h.identity.Alias)
	}
	return nil
}

// degrade() marks a running node as failing; the caller holds the lock
func (h *Handle) degrade() {
	if CanTransition(h.state, Degraded) {
		h.state = Degraded
	}
}

func (h *Handle) setPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = paused
}

// transition() moves the handle through the lifecycle
func (h *Handle) transition(to State) lib.ErrorI {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !CanTransition(h.state, to) {
		return lib.ErrInvalidTransition(h.state.String(), to.String())
	}
	h.state = to
	return nil
}

// watch() degrades the handle when the node exits on its own
func (h *Handle) watch(p Process) {
	<-p.Exited()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Running {
		h.log.Warnf("Node %s exited unexpectedly", h.identity.Alias)
		h.state = Degraded
	}
}
