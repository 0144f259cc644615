// Package zap implements the ZeroMQ Authentication Protocol handler:
// a synchronous authentication oracle consulted at handshake time that
// maps a presented public key to a user identity, the approach taken by
// original_source/core/server/CoreServer.cpp's zapHandler().
package zap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/computingfreak/DataFed/internal/directory"
	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/repo"
	"github.com/computingfreak/DataFed/internal/security"
	"github.com/computingfreak/DataFed/internal/state"
	"github.com/computingfreak/DataFed/internal/z85"
)

// Endpoint is the well-known in-process ZAP endpoint the handler binds.
// The fan-out's frontends do not connect to it.
const Endpoint = "inproc://zeromq.zap.01"

const (
	anonPrefix       = "anon_"
	rawClientKeyLen  = 32
	replyVersion     = "1.0"
	replyStatusOK    = "200"
	oraclePoolSize   = 8
	oracleCallBudget = 5 * time.Second
)

// Handler answers ZAP requests. It binds a ROUTER socket (rather than a
// strict REP socket) at Endpoint: the 7-in/6-out frame contract is
// hand-parsed either way, and ROUTER lets the tier-3 directory-oracle
// lookup run on a bounded worker pool without stalling requests from
// other peers — REP's recv/send alternation would otherwise force every
// handshake to be fully serial.
type Handler struct {
	registry *repo.Registry
	state    *state.State
	oracle   directory.Oracle
	metrics  *metrics.Collector

	sock      zmq4.Socket
	oracleSem chan struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Handler. sec is accepted for symmetry with the other
// socket constructors in this codebase (all sockets are built from the
// same shared security.Context) even though the ZAP endpoint itself is
// always an inproc, unauthenticated transport.
func New(_ *security.Context, registry *repo.Registry, st *state.State, oracle directory.Oracle, mc *metrics.Collector) *Handler {
	return &Handler{
		registry:  registry,
		state:     st,
		oracle:    oracle,
		metrics:   mc,
		oracleSem: make(chan struct{}, oraclePoolSize),
	}
}

// Start binds the ZAP endpoint and begins serving requests in a
// background goroutine.
func (h *Handler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	sock := zmq4.NewRouter(runCtx)
	if err := sock.Listen(Endpoint); err != nil {
		cancel()
		return fmt.Errorf("binding zap endpoint: %w", err)
	}
	h.sock = sock

	h.wg.Add(1)
	go h.run(runCtx)
	return nil
}

// Stop cancels the handler's context, which unblocks its Recv loop, then
// waits for in-flight requests to finish and closes the socket.
func (h *Handler) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	if h.sock != nil {
		h.sock.Close()
	}
}

func (h *Handler) run(ctx context.Context) {
	defer h.wg.Done()
	for {
		msg, err := h.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("zap: recv failed", "err", err)
			continue
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handle(ctx, msg)
		}()
	}
}

// handle parses one ZAP request, resolves an identity, and sends the
// reply. Per-request errors are logged and no reply is sent — the peer
// will time out.
func (h *Handler) handle(ctx context.Context, msg zmq4.Msg) {
	start := time.Now()

	if len(msg.Frames) != 8 {
		slog.Error("zap: malformed request envelope", "frames", len(msg.Frames))
		return
	}
	routingID := msg.Frames[0]
	requestID := msg.Frames[2]
	clientKey := msg.Frames[7]

	if len(clientKey) != rawClientKeyLen {
		slog.Error("zap: wrong client key length", "len", len(clientKey))
		return
	}

	encodedKey, err := z85.Encode(clientKey)
	if err != nil {
		slog.Error("zap: z85 encode failed", "err", err)
		return
	}

	identity, tier := h.resolveIdentity(ctx, encodedKey)
	h.metrics.ZAPRequest("allow", tier, time.Since(start))

	reply := zmq4.NewMsgFrom(
		routingID,
		[]byte(replyVersion),
		requestID,
		[]byte(replyStatusOK),
		[]byte(""),
		[]byte(identity),
		[]byte(""),
	)
	if err := h.sock.Send(reply); err != nil {
		slog.Error("zap: send failed", "err", err)
	}
}

// resolveIdentity implements the three-tier-plus-fallback identity
// resolution order: auth table, then transient grant, then directory
// oracle, then an anonymous identity derived from the client key.
func (h *Handler) resolveIdentity(ctx context.Context, encodedKey string) (identity, tier string) {
	if id, ok := h.registry.ResolveAuth(encodedKey); ok {
		return id, "auth_table"
	}
	if id, ok := h.state.LookupTransient(encodedKey); ok {
		return id, "transient_grant"
	}
	if id, ok := h.lookupOracle(ctx, encodedKey); ok {
		return id, "directory_oracle"
	}
	return anonPrefix + encodedKey, "anonymous"
}

func (h *Handler) lookupOracle(ctx context.Context, encodedKey string) (string, bool) {
	select {
	case h.oracleSem <- struct{}{}:
		defer func() { <-h.oracleSem }()
	case <-ctx.Done():
		return "", false
	}

	queryCtx, cancel := context.WithTimeout(ctx, oracleCallBudget)
	defer cancel()

	identity, ok, err := h.oracle.LookupByPublicKey(queryCtx, encodedKey)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			slog.Error("zap: directory oracle lookup failed", "err", err)
		}
		return "", false
	}
	return identity, ok
}
