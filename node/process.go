package node

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/mocknode"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
	"github.com/shirou/gopsutil/v3/process"
)

/* This file implements the launcher of nodes that run as child processes of the harness */

// ProcessLauncher starts node binaries and wires their gossip peers over REST
type ProcessLauncher struct {
	config lib.NodeConfig
	log    lib.LoggerI
	mu     sync.Mutex
	procs  map[topology.NodeID]*supervisor
	urls   map[topology.NodeID]string

	pushMu  sync.Mutex         // orders peer pushes
	current *topology.Topology // the newest snapshot pushed
}

var _ Launcher = &ProcessLauncher{}

// NewProcessLauncher() creates a launcher for config.BinaryPath
func NewProcessLauncher(config lib.NodeConfig, log lib.LoggerI) *ProcessLauncher {
	return &ProcessLauncher{
		config: config,
		log:    log,
		procs:  make(map[topology.NodeID]*supervisor),
		urls:   make(map[topology.NodeID]string),
	}
}

// Args() returns the command line of a node: the configured arguments followed by its identity flags
func (l *ProcessLauncher) Args(identity Identity, view View) []string {
	return append(append([]string(nil), l.config.BinaryArgs...),
		"--id", strconv.FormatInt(int64(identity.ID), 10),
		"--alias", identity.Alias,
		"--genesis", view.GenesisPath,
		"--rest", identity.RESTAddress,
		"--grpc", identity.GRPCAddress,
		"--data-dir", identity.DataDirPath,
	)
}

// Launch() starts the binary; health is the controller's concern
func (l *ProcessLauncher) Launch(_ context.Context, identity Identity, view View) (Process, lib.ErrorI) {
	if view.GenesisPath == "" {
		return nil, lib.ErrInvalidConfig("process nodes need a genesis file")
	}
	s := &supervisor{
		alias:  identity.Alias,
		logs:   lib.NewLogBuffer(logCapacity),
		client: rpc.NewClient("http://"+identity.RESTAddress, identity.GRPCAddress, l.config.RequestTimeout()),
		kill:   l.config.StopTimeout(),
		log:    l.log,
		exited: make(chan struct{}),
	}
	if err := s.start(l.config.BinaryPath, l.Args(identity, view)); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range view.Identities {
		l.urls[id] = "http://" + view.Identities[id].RESTAddress
	}
	l.procs[identity.ID] = s
	return s, nil
}

// SetTopology() sends every live node the REST addresses of its neighbors; a snapshot older than the last one pushed is ignored
func (l *ProcessLauncher) SetTopology(ctx context.Context, t *topology.Topology) lib.ErrorI {
	l.pushMu.Lock()
	defer l.pushMu.Unlock()
	if l.current != nil && t.Version() < l.current.Version() {
		l.log.Debugf("Ignoring topology v%d older than v%d", t.Version(), l.current.Version())
		return nil
	}
	l.current = t
	l.mu.Lock()
	procs := make(map[topology.NodeID]*supervisor, len(l.procs))
	for id, s := range l.procs {
		procs[id] = s
	}
	l.mu.Unlock()
	var errs []error
	for id, s := range procs {
		if s.done() || !t.HasNode(id) {
			continue
		}
		if err := s.client.SetPeers(ctx, mocknode.PeersOf(t, id, l.urlOf)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return lib.ErrGossip(err)
	}
	return nil
}

// Close() kills whatever is still running
func (l *ProcessLauncher) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, s := range l.procs {
		if !s.done() {
			_ = s.Kill()
		}
		delete(l.procs, id)
	}
}

func (l *ProcessLauncher) urlOf(id topology.NodeID) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.urls[id]
}

// supervisor runs one node binary until it exits
type supervisor struct {
	alias  string
	cmd    *exec.Cmd
	logs   *lib.LogBuffer
	client *rpc.Client
	kill   time.Duration // how long a killed process may take to be reaped
	log    lib.LoggerI

	mu      sync.Mutex
	exitErr error
	exited  chan struct{} // closed once the process was reaped
}

// start() execs the binary, capturing its output
func (s *supervisor) start(binPath string, args []string) lib.ErrorI {
	s.log.Infof("Starting node process %s: %s", s.alias, binPath)
	s.cmd = exec.Command(binPath, args...)
	s.cmd.Stdout, s.cmd.Stderr = s.logs, s.logs
	if err := s.cmd.Start(); err != nil {
		return lib.ErrLaunch(s.alias, err)
	}
	go s.monitor()
	return nil
}

// monitor() waits for the process to exit
func (s *supervisor) monitor() {
	err := s.cmd.Wait()
	s.mu.Lock()
	s.exitErr = err
	s.mu.Unlock()
	close(s.exited)
	s.log.Infof("Node process %s exited: %v", s.alias, err)
}

// exitError() returns how the process ended
func (s *supervisor) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *supervisor) done() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *supervisor) Client() Client          { return s.client }
func (s *supervisor) Logs() []string          { return s.logs.Lines() }
func (s *supervisor) Exited() <-chan struct{} { return s.exited }

// Resources() samples the CPU and resident memory of the process
func (s *supervisor) Resources() (cpuPercent float64, rss uint64) {
	if s.done() {
		return
	}
	p, err := process.NewProcess(int32(s.cmd.Process.Pid))
	if err != nil {
		return
	}
	cpuPercent, _ = p.CPUPercent()
	if mem, e := p.MemoryInfo(); e == nil {
		rss = mem.RSS
	}
	return
}

// Stop() interrupts the process and kills it when ctx expires
func (s *supervisor) Stop(ctx context.Context) lib.ErrorI {
	if s.done() {
		s.log.Debugf("Node process %s already exited: %v", s.alias, s.exitError())
		return s.released()
	}
	s.log.Infof("Stopping node process %s gracefully", s.alias)
	if err := s.cmd.Process.Signal(syscall.SIGINT); err != nil && !s.done() {
		return lib.ErrProcessSignal(err)
	}
	select {
	case <-s.exited:
		return s.released()
	case <-ctx.Done():
		s.log.Warnf("Graceful shutdown of %s timed out, force killing", s.alias)
		return s.Kill()
	}
}

// Kill() terminates the process and waits for it to be reaped
func (s *supervisor) Kill() lib.ErrorI {
	if !s.done() {
		if err := s.cmd.Process.Kill(); err != nil && !s.done() {
			return lib.ErrProcessSignal(err)
		}
	}
	select {
	case <-s.exited:
		return s.released()
	case <-time.After(s.kill):
		return lib.ErrProcessNotReleased(s.cmd.Process.Pid)
	}
}

// released() confirms the OS no longer runs the process; a live pid only counts if it is still our child with our command line
func (s *supervisor) released() lib.ErrorI {
	pid := s.cmd.Process.Pid
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return nil
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	ppid, _ := p.Ppid()
	args, _ := p.CmdlineSlice()
	if int(ppid) == os.Getpid() && slices.Equal(args, s.cmd.Args) {
		return lib.ErrProcessNotReleased(pid)
	}
	return nil
}
