package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/units"
	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	ContentType     = "Content-Type"
	ApplicationJSON = "application/json; charset=utf-8"

	// HealthService is the grpc health service name a node registers
	HealthService = "mocknet.node"

	maxConnections = 256
)

// NodeAPI is what a node exposes over REST
type NodeAPI interface {
	Alias() string
	Healthy() bool
	Submit(bz []byte) SubmitResult
	Receive(from int64, bz []byte) bool
	Tip() BlockID
	FragmentLogs() []FragmentLog
	FragmentLog(id ledger.FragmentID) (FragmentLog, bool)
	Stats() NodeStats
	Account(address string) (AccountState, lib.ErrorI)
	SetPeers(peers []Peer) lib.ErrorI
	Pause()
	Resume()
}

// ServerConfig are the listen options of a node server
type ServerConfig struct {
	RESTAddress string        // host:port of the REST interface
	GRPCAddress string        // host:port of the grpc health service, empty disables it
	Timeout     time.Duration // per request timeout
}

// Server serves a node over REST and reports its health over grpc
type Server struct {
	api    NodeAPI
	config ServerConfig
	log    lib.LoggerI
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
	rest   net.Addr // bound REST address
	gaddr  net.Addr // bound grpc address
}

// NewServer() constructs a stopped server
func NewServer(api NodeAPI, config ServerConfig, log lib.LoggerI) *Server {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Server{api: api, config: config, log: log, health: health.NewServer()}
}

// Handler() returns the REST handler: the router wrapped in CORS and a request timeout
func (s *Server) Handler() http.Handler {
	cor := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS", "POST"},
	})
	return cor.Handler(http.TimeoutHandler(createRouter(s), s.config.Timeout, lib.ErrServerTimeout().Error()))
}

// Start() binds the listeners and serves in the background
func (s *Server) Start() lib.ErrorI {
	ln, err := net.Listen("tcp", s.config.RESTAddress)
	if err != nil {
		return lib.ErrLaunch(s.api.Alias(), err)
	}
	s.rest = ln.Addr()
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: s.config.Timeout}
	go func() {
		s.log.Infof("Starting REST server at %s", ln.Addr())
		if e := s.http.Serve(netutil.LimitListener(ln, maxConnections)); e != nil && !errors.Is(e, http.ErrServerClosed) {
			s.log.Errorf("REST server failed with err: %s", e.Error())
		}
	}()
	if s.config.GRPCAddress == "" {
		return nil
	}
	gln, err := net.Listen("tcp", s.config.GRPCAddress)
	if err != nil {
		_ = s.http.Close()
		return lib.ErrLaunch(s.api.Alias(), err)
	}
	s.gaddr = gln.Addr()
	s.grpc = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	go func() {
		s.log.Infof("Starting grpc health service at %s", gln.Addr())
		if e := s.grpc.Serve(gln); e != nil {
			s.log.Errorf("grpc server failed with err: %s", e.Error())
		}
	}()
	return nil
}

// RESTAddr() returns the bound REST address, useful when listening on port 0
func (s *Server) RESTAddr() string { return addrString(s.rest) }

// GRPCAddr() returns the bound grpc address
func (s *Server) GRPCAddr() string { return addrString(s.gaddr) }

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Stop() gracefully shuts both servers down
func (s *Server) Stop(ctx context.Context) {
	if s.grpc != nil {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.log.Warnf("REST server shutdown: %s", err.Error())
		}
	}
}

// Health() answers 200 while the node serves, 503 otherwise
func (s *Server) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if !s.api.Healthy() {
		write(w, healthResponse{Status: "unavailable", Alias: s.api.Alias()}, http.StatusServiceUnavailable)
		return
	}
	write(w, healthResponse{Status: "ok", Alias: s.api.Alias()}, http.StatusOK)
}

// Message() submits a fragment; a rejection is a successful response carrying the reason
func (s *Server) Message(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(fragmentRequest)
	if !unmarshal(w, r, req) {
		return
	}
	bz, err := hex.DecodeString(req.Fragment)
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return
	}
	write(w, s.api.Submit(bz), http.StatusOK)
}

// Tip() returns the chain tip
func (s *Server) Tip(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, s.api.Tip(), http.StatusOK)
}

// FragmentLogs() returns every fragment record of the node
func (s *Server) FragmentLogs(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, s.api.FragmentLogs(), http.StatusOK)
}

// Fragment() returns one fragment record, 404 if the node never saw it
func (s *Server) Fragment(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	l, ok := s.api.FragmentLog(ledger.FragmentID(p.ByName("id")))
	if !ok {
		write(w, "fragment not found", http.StatusNotFound)
		return
	}
	write(w, l, http.StatusOK)
}

// NodeStats() returns the node summary
func (s *Server) NodeStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, s.api.Stats(), http.StatusOK)
}

// Account() returns the balance view of an address
func (s *Server) Account(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	acc, err := s.api.Account(p.ByName("address"))
	if err != nil {
		write(w, err, http.StatusBadRequest)
		return
	}
	write(w, acc, http.StatusOK)
}

// Gossip() receives a fragment from a peer
func (s *Server) Gossip(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(gossipRequest)
	if !unmarshal(w, r, req) {
		return
	}
	bz, err := hex.DecodeString(req.Fragment)
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.api.Receive(req.From, bz) {
		write(w, "inbox full", http.StatusServiceUnavailable)
		return
	}
	write(w, true, http.StatusOK)
}

// Peers() replaces the gossip peers of the node
func (s *Server) Peers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(peersRequest)
	if !unmarshal(w, r, req) {
		return
	}
	if err := s.api.SetPeers(req.Peers); err != nil {
		write(w, err, http.StatusBadRequest)
		return
	}
	write(w, true, http.StatusOK)
}

// Pause() freezes the node
func (s *Server) Pause(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.api.Pause()
	write(w, true, http.StatusOK)
}

// Resume() unfreezes the node
func (s *Server) Resume(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.api.Resume()
	write(w, true, http.StatusOK)
}

// unmarshal() reads a bounded json body into ptr, answering 400 on failure
func unmarshal(w http.ResponseWriter, r *http.Request, ptr interface{}) bool {
	bz, err := io.ReadAll(io.LimitReader(r.Body, int64(units.MB)))
	if err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return false
	}
	defer func() { _ = r.Body.Close() }()
	if err = json.Unmarshal(bz, ptr); err != nil {
		write(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// write() marshals payload to w
func write(w http.ResponseWriter, payload interface{}, code int) {
	w.Header().Set(ContentType, ApplicationJSON)
	w.WriteHeader(code)
	bz, _ := json.MarshalIndent(payload, "", "  ")
	_, _ = w.Write(bz)
}
