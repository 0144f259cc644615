package worker

import (
	"context"
	"testing"

	"github.com/go-zeromq/zmq4"
)

func TestNoopHandlerPreservesIdentityFrame(t *testing.T) {
	req := zmq4.NewMsgFrom([]byte("peer-identity"), []byte("payload"))

	reply, err := NoopHandler{}.Handle(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(reply.Frames))
	}
	if string(reply.Frames[0]) != "peer-identity" {
		t.Errorf("expected identity frame preserved, got %q", reply.Frames[0])
	}
	if len(reply.Frames[1]) != 0 {
		t.Errorf("expected empty body, got %q", reply.Frames[1])
	}
}

func TestNoopHandlerEmptyRequest(t *testing.T) {
	reply, err := NoopHandler{}.Handle(context.Background(), zmq4.NewMsgFrom(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Frames) != 1 {
		t.Fatalf("expected 1 frame for empty request, got %d", len(reply.Frames))
	}
}

func TestEchoHandlerReturnsRequestVerbatim(t *testing.T) {
	req := zmq4.NewMsgFrom([]byte("peer-identity"), []byte("hello"), []byte("world"))

	reply, err := EchoHandler{}.Handle(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(reply.Frames))
	}
	for i, f := range reply.Frames {
		if string(f) != string(req.Frames[i]) {
			t.Errorf("frame %d mismatch: got %q want %q", i, f, req.Frames[i])
		}
	}
}
