// Package worker defines the wire-level request handlers executed inside
// workers (business logic), plus the built-in handlers used for
// bootstrap and tests.
package worker

import (
	"context"

	"github.com/go-zeromq/zmq4"

	"github.com/computingfreak/DataFed/internal/transfer"
)

// Capabilities is the small back-reference interface handed to workers
// instead of a full, cyclic server reference: workers may enqueue
// control operations and authorize transient grants, but do not own the
// server.
type Capabilities interface {
	EnqueueDataDelete(repoID, path string)
	EnqueuePathCreate(repoID, id string)
	EnqueuePathDelete(repoID, id string)
	AuthorizeTransient(certUID, identity string) bool
	GetRepoAddress(repoID string) (string, bool)
	HandOffTransfer(job transfer.Job) error
}

// RequestHandler consumes one framed client request and produces one
// framed reply. request.Frames[0] is the routing identity frame the
// frontend ROUTER socket assigned to the peer, carried through by the
// internal fan-out; the frontends do not consult the ZAP handler, so this
// frame is not a ZAP-resolved identity;
// implementations that need to reply to a different peer than the one
// addressed should not mutate this frame.
type RequestHandler interface {
	Handle(ctx context.Context, request zmq4.Msg, caps Capabilities) (zmq4.Msg, error)
}

// NoopHandler replies to every request with just the identity frame and
// an empty body. Useful for liveness-testing the fan-out without any
// business logic wired in.
type NoopHandler struct{}

// Handle implements RequestHandler.
func (NoopHandler) Handle(_ context.Context, request zmq4.Msg, _ Capabilities) (zmq4.Msg, error) {
	if len(request.Frames) == 0 {
		return zmq4.NewMsgFrom([]byte{}), nil
	}
	return zmq4.NewMsgFrom(request.Frames[0], []byte{}), nil
}

// EchoHandler replies with exactly the frames it received. Used in tests
// to assert fan-out plumbing preserves frame boundaries and the identity
// frame.
type EchoHandler struct{}

// Handle implements RequestHandler.
func (EchoHandler) Handle(_ context.Context, request zmq4.Msg, _ Capabilities) (zmq4.Msg, error) {
	return request, nil
}
