package rpc

import (
	"net/http"

	"github.com/canopy-network/mocknet/lib"
	"github.com/julienschmidt/httprouter"
)

// Mock node REST paths
const (
	HealthRoutePath       = "/api/v0/health"
	MessageRoutePath      = "/api/v0/message"
	TipRoutePath          = "/api/v0/tip"
	FragmentLogsRoutePath = "/api/v0/fragments"
	FragmentRoutePath     = "/api/v0/fragment/:id"
	NodeStatsRoutePath    = "/api/v0/node/stats"
	AccountRoutePath      = "/api/v0/account/:address"
	GossipRoutePath       = "/api/v0/gossip"
	PeersRoutePath        = "/api/v0/admin/peers"
	PauseRoutePath        = "/api/v0/admin/pause"
	ResumeRoutePath       = "/api/v0/admin/resume"
)

// Mock node REST route names
const (
	HealthRouteName       = "health"
	MessageRouteName      = "message"
	TipRouteName          = "tip"
	FragmentLogsRouteName = "fragment-logs"
	FragmentRouteName     = "fragment"
	NodeStatsRouteName    = "node-stats"
	AccountRouteName      = "account"
	GossipRouteName       = "gossip"
	PeersRouteName        = "peers"
	PauseRouteName        = "pause"
	ResumeRouteName       = "resume"
)

// routes contains the method and path of a mock node command
type routes map[string]struct {
	Method string
	Path   string
}

// routePaths is a mapping from route names to their HTTP methods and paths
var routePaths = routes{
	HealthRouteName:       {Method: http.MethodGet, Path: HealthRoutePath},
	MessageRouteName:      {Method: http.MethodPost, Path: MessageRoutePath},
	TipRouteName:          {Method: http.MethodGet, Path: TipRoutePath},
	FragmentLogsRouteName: {Method: http.MethodGet, Path: FragmentLogsRoutePath},
	FragmentRouteName:     {Method: http.MethodGet, Path: FragmentRoutePath},
	NodeStatsRouteName:    {Method: http.MethodGet, Path: NodeStatsRoutePath},
	AccountRouteName:      {Method: http.MethodGet, Path: AccountRoutePath},
	GossipRouteName:       {Method: http.MethodPost, Path: GossipRoutePath},
	PeersRouteName:        {Method: http.MethodPost, Path: PeersRoutePath},
	PauseRouteName:        {Method: http.MethodPost, Path: PauseRoutePath},
	ResumeRouteName:       {Method: http.MethodPost, Path: ResumeRoutePath},
}

type httpRouteHandlers map[string]httprouter.Handle

// createRouter() initializes the router with every mock node handler
func createRouter(s *Server) *httprouter.Router {
	var r = httpRouteHandlers{
		HealthRouteName:       s.Health,
		MessageRouteName:      s.Message,
		TipRouteName:          s.Tip,
		FragmentLogsRouteName: s.FragmentLogs,
		FragmentRouteName:     s.Fragment,
		NodeStatsRouteName:    s.NodeStats,
		AccountRouteName:      s.Account,
		GossipRouteName:       s.Gossip,
		PeersRouteName:        s.Peers,
		PauseRouteName:        s.Pause,
		ResumeRouteName:       s.Resume,
	}
	router := httprouter.New()
	for name, handler := range r {
		path := routePaths[name]
		router.Handle(path.Method, path.Path, logHandler{path: path.Path, h: handler, log: s.log}.Handle)
	}
	return router
}

// logHandler logs every request at debug level before serving it
type logHandler struct {
	path string
	h    httprouter.Handle
	log  lib.LoggerI
}

// Handle() implements httprouter.Handle
func (h logHandler) Handle(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	h.log.Debugf("%s %s", r.Method, h.path)
	h.h(w, r, p)
}
