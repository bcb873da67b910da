package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/node"
	"golang.org/x/sync/errgroup"
)

// WaitResult is the outcome of a bounded wait: Propagated, or TimedOut with the nodes that never got there
type WaitResult struct {
	Propagated bool          `json:"propagated"`
	Missing    []string      `json:"missing,omitempty"`
	Took       time.Duration `json:"took"`
}

// String() returns 'propagated' or 'timed-out[missing]'
func (w WaitResult) String() string {
	if w.Propagated {
		return fmt.Sprintf("propagated in %s", w.Took.Round(time.Millisecond))
	}
	return fmt.Sprintf("timed-out %v", w.Missing)
}

// WaitForFragment() polls the targets until each holds the fragment in its pool or a block, or the deadline passes.
// Empty targets mean every node. A timeout is a result, not an error
func (n *Network) WaitForFragment(ctx context.Context, id ledger.FragmentID, targets []string, deadline time.Duration) (WaitResult, lib.ErrorI) {
	result, err := n.waitFor(ctx, targets, deadline, func(ctx context.Context, h *node.Handle) bool {
		ok, e := h.HasFragment(ctx, id)
		return e == nil && ok
	})
	if err == nil {
		n.metrics.ObservePropagation(result.Took, result.Propagated)
	}
	return result, err
}

// WaitForHeight() polls the targets until each chain tip reaches the height
func (n *Network) WaitForHeight(ctx context.Context, height uint64, targets []string, deadline time.Duration) (WaitResult, lib.ErrorI) {
	return n.waitFor(ctx, targets, deadline, func(ctx context.Context, h *node.Handle) bool {
		tip, e := h.ChainTip(ctx)
		return e == nil && tip.Height >= height
	})
}

// waitFor() polls done on every target not yet done at the harness poll interval
func (n *Network) waitFor(ctx context.Context, targets []string, deadline time.Duration, done func(context.Context, *node.Handle) bool) (WaitResult, lib.ErrorI) {
	handles, err := n.resolve(targets)
	if err != nil {
		return WaitResult{}, err
	}
	started := n.clock.Now()
	timeout := n.clock.After(deadline)
	ticker := n.clock.NewTicker(n.config.PollInterval())
	defer ticker.Stop()
	pending := handles
	for {
		pending = poll(ctx, pending, done)
		if len(pending) == 0 {
			return WaitResult{Propagated: true, Took: n.clock.Since(started)}, nil
		}
		select {
		case <-ctx.Done():
			return timedOut(pending, n.clock.Since(started)), nil
		case <-timeout:
			return timedOut(pending, n.clock.Since(started)), nil
		case <-ticker.Chan():
		}
	}
}

// poll() checks the handles concurrently and returns those not yet done, in order
func poll(ctx context.Context, handles []*node.Handle, done func(context.Context, *node.Handle) bool) (pending []*node.Handle) {
	ok := make([]bool, len(handles))
	var g errgroup.Group
	for i, h := range handles {
		g.Go(func() error {
			ok[i] = done(ctx, h)
			return nil
		})
	}
	_ = g.Wait()
	for i, h := range handles {
		if !ok[i] {
			pending = append(pending, h)
		}
	}
	return
}

func timedOut(pending []*node.Handle, took time.Duration) WaitResult {
	result := WaitResult{Took: took}
	for _, h := range pending {
		result.Missing = append(result.Missing, h.Alias())
	}
	return result
}

// resolve() maps aliases to handles, every handle when aliases is empty
func (n *Network) resolve(aliases []string) ([]*node.Handle, lib.ErrorI) {
	if len(aliases) == 0 {
		return n.Handles(), nil
	}
	handles := make([]*node.Handle, 0, len(aliases))
	for _, alias := range aliases {
		h, err := n.Handle(alias)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}
