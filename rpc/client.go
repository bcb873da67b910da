package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client talks to one node over REST and probes its grpc health service
type Client struct {
	rpcURL      string
	grpcAddress string
	client      http.Client

	mu   sync.Mutex
	conn *grpc.ClientConn // lazily dialed
}

// NewClient() creates a client for the node at rpcURL; an empty grpcAddress probes health over REST
func NewClient(rpcURL, grpcAddress string, timeout time.Duration) *Client {
	return &Client{rpcURL: strings.TrimSuffix(rpcURL, "/"), grpcAddress: grpcAddress, client: http.Client{Timeout: timeout}}
}

// URL() returns the REST base url of the node
func (c *Client) URL() string { return c.rpcURL }

// Health() checks that the node serves, over grpc when it has a health service
func (c *Client) Health(ctx context.Context) lib.ErrorI {
	if c.grpcAddress == "" {
		return c.get(ctx, HealthRouteName, "", new(healthResponse))
	}
	conn, err := c.dial()
	if err != nil {
		return err
	}
	resp, e := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if e != nil {
		return lib.ErrHealthCheck(e)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return lib.ErrHealthCheck(io.ErrUnexpectedEOF)
	}
	return nil
}

// Submit() posts a fragment to the node
func (c *Client) Submit(ctx context.Context, bz []byte) (result SubmitResult, err lib.ErrorI) {
	err = c.post(ctx, MessageRouteName, fragmentRequest{Fragment: hex.EncodeToString(bz)}, &result)
	return
}

// Tip() returns the chain tip of the node
func (c *Client) Tip(ctx context.Context) (tip BlockID, err lib.ErrorI) {
	err = c.get(ctx, TipRouteName, "", &tip)
	return
}

// FragmentLogs() returns every fragment record of the node
func (c *Client) FragmentLogs(ctx context.Context) (logs []FragmentLog, err lib.ErrorI) {
	err = c.get(ctx, FragmentLogsRouteName, "", &logs)
	return
}

// FragmentLog() returns one fragment record, found is false when the node never saw it
func (c *Client) FragmentLog(ctx context.Context, id ledger.FragmentID) (l FragmentLog, found bool, err lib.ErrorI) {
	err = c.get(ctx, FragmentRouteName, string(id), &l)
	if lib.HasCode(err, lib.NetworkModule, lib.CodeHttpStatus) && statusOf(err) == http.StatusNotFound {
		return FragmentLog{}, false, nil
	}
	return l, err == nil, err
}

// Stats() returns the node summary
func (c *Client) Stats(ctx context.Context) (stats NodeStats, err lib.ErrorI) {
	err = c.get(ctx, NodeStatsRouteName, "", &stats)
	return
}

// Account() returns the balance view of an address
func (c *Client) Account(ctx context.Context, address string) (acc AccountState, err lib.ErrorI) {
	err = c.get(ctx, AccountRouteName, address, &acc)
	return
}

// Gossip() forwards a fragment to the node as peer 'from'
func (c *Client) Gossip(ctx context.Context, from int64, bz []byte) lib.ErrorI {
	return c.post(ctx, GossipRouteName, gossipRequest{From: from, Fragment: hex.EncodeToString(bz)}, new(bool))
}

// SetPeers() replaces the gossip peers of the node
func (c *Client) SetPeers(ctx context.Context, peers []Peer) lib.ErrorI {
	return c.post(ctx, PeersRouteName, peersRequest{Peers: peers}, new(bool))
}

// Pause() freezes the node
func (c *Client) Pause(ctx context.Context) lib.ErrorI {
	return c.post(ctx, PauseRouteName, nil, new(bool))
}

// Resume() unfreezes the node
func (c *Client) Resume(ctx context.Context) lib.ErrorI {
	return c.post(ctx, ResumeRouteName, nil, new(bool))
}

// Close() releases the grpc connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.client.CloseIdleConnections()
}

// dial() opens the grpc connection once
func (c *Client) dial() (*grpc.ClientConn, lib.ErrorI) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.grpcAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, lib.ErrHealthCheck(err)
	}
	c.conn = conn
	return conn, nil
}

// url() resolves a route, replacing its single path parameter with param
func (c *Client) url(routeName, param string) string {
	path := routePaths[routeName].Path
	if i := strings.Index(path, "/:"); i >= 0 {
		path = path[:i+1] + param
	}
	return c.rpcURL + path
}

func (c *Client) post(ctx context.Context, routeName string, payload any, ptr any) lib.ErrorI {
	var body []byte
	if payload != nil {
		bz, err := lib.MarshalJSON(payload)
		if err != nil {
			return err
		}
		body = bz
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(routeName, ""), bytes.NewBuffer(body))
	if err != nil {
		return lib.ErrPostRequest(err)
	}
	req.Header.Set(ContentType, ApplicationJSON)
	resp, err := c.client.Do(req)
	if err != nil {
		return lib.ErrPostRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) get(ctx context.Context, routeName, param string, ptr any) lib.ErrorI {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(routeName, param), nil)
	if err != nil {
		return lib.ErrGetRequest(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return lib.ErrGetRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) unmarshal(resp *http.Response, ptr any) lib.ErrorI {
	defer func() { _ = resp.Body.Close() }()
	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return lib.ErrReadBody(err)
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{ErrorI: lib.ErrHttpStatus(resp.Status, resp.StatusCode, bz), code: resp.StatusCode}
	}
	return lib.UnmarshalJSON(bz, ptr)
}

// statusError keeps the http status of a failed response
type statusError struct {
	lib.ErrorI
	code int
}

// Unwrap() exposes the wrapped error to errors.Is
func (e *statusError) Unwrap() error { return e.ErrorI }

// statusOf() extracts the http status carried by err, 0 if none
func statusOf(err error) int {
	if e, ok := err.(*statusError); ok {
		return e.code
	}
	return 0
}
