package zap

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/computingfreak/DataFed/internal/directory"
	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/repo"
	"github.com/computingfreak/DataFed/internal/state"
	"github.com/computingfreak/DataFed/internal/z85"
)

func newTestHandler(t *testing.T) (*Handler, *repo.Registry, *state.State, *directory.StaticOracle) {
	t.Helper()
	reg := repo.NewRegistry()
	st := state.New()
	oracle := directory.NewStaticOracle()
	h := New(nil, reg, st, oracle, metrics.New())
	return h, reg, st, oracle
}

func TestResolveIdentityAuthTableHit(t *testing.T) {
	h, reg, _, _ := newTestHandler(t)
	key := strings.Repeat("a", 40)
	reg.Load([]repo.Descriptor{{
		ID:        "repo/a",
		Address:   "tcp://a",
		PublicKey: key,
		Endpoint:  strings.Repeat("1", 36),
		Path:      "/mnt/a",
	}})

	identity, tier := h.resolveIdentity(context.Background(), key)
	if identity != "repo/a" {
		t.Errorf("expected identity repo/a, got %q", identity)
	}
	if tier != "auth_table" {
		t.Errorf("expected tier auth_table, got %q", tier)
	}
}

func TestResolveIdentityTransientHit(t *testing.T) {
	h, _, st, _ := newTestHandler(t)
	st.AuthorizeTransient("anon_K", "u/alice")

	identity, tier := h.resolveIdentity(context.Background(), "K")
	if identity != "u/alice" {
		t.Errorf("expected identity u/alice, got %q", identity)
	}
	if tier != "transient_grant" {
		t.Errorf("expected tier transient_grant, got %q", tier)
	}
}

func TestResolveIdentityOracleHit(t *testing.T) {
	h, _, _, oracle := newTestHandler(t)
	oracle.Identities["K"] = "u/bob"

	identity, tier := h.resolveIdentity(context.Background(), "K")
	if identity != "u/bob" {
		t.Errorf("expected identity u/bob, got %q", identity)
	}
	if tier != "directory_oracle" {
		t.Errorf("expected tier directory_oracle, got %q", tier)
	}
}

// TestResolveIdentityAnonFallback verifies that for an unknown public key
// and an oracle miss, the identity is "anon_" ++ z85(client_key).
func TestResolveIdentityAnonFallback(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	identity, tier := h.resolveIdentity(context.Background(), "unknownkey")
	if identity != "anon_unknownkey" {
		t.Errorf("expected anon_unknownkey, got %q", identity)
	}
	if tier != "anonymous" {
		t.Errorf("expected tier anonymous, got %q", tier)
	}
}

// TestResolveIdentityTierPriority verifies the auth table takes priority
// over a transient grant for the same key, and a transient grant takes
// priority over the oracle.
func TestResolveIdentityTierPriority(t *testing.T) {
	h, reg, st, oracle := newTestHandler(t)
	key := strings.Repeat("b", 40)

	oracle.Identities[key] = "from-oracle"
	identity, tier := h.resolveIdentity(context.Background(), key)
	if identity != "from-oracle" || tier != "directory_oracle" {
		t.Fatalf("expected oracle hit, got %q/%q", identity, tier)
	}

	st.AuthorizeTransient("anon_"+key, "from-transient")
	identity, tier = h.resolveIdentity(context.Background(), key)
	if identity != "from-transient" || tier != "transient_grant" {
		t.Fatalf("expected transient grant to take priority, got %q/%q", identity, tier)
	}

	reg.Load([]repo.Descriptor{{
		ID:        "repo/b",
		Address:   "tcp://b",
		PublicKey: key,
		Endpoint:  strings.Repeat("2", 36),
		Path:      "/mnt/b",
	}})
	identity, tier = h.resolveIdentity(context.Background(), key)
	if identity != "repo/b" || tier != "auth_table" {
		t.Fatalf("expected auth table to take priority, got %q/%q", identity, tier)
	}
}

// TestHandleProducesWellFormedReply verifies that ZAP always emits a
// 6-frame reply with status "200" given a well-formed 7-frame request
// carrying a 32-byte client key. The ROUTER socket adds an eighth frame
// (the routing ID) on the inbound side and strips it again on the way
// out, so a well-behaved DEALER peer sends 7 frames and receives 6.
func TestHandleProducesWellFormedReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, reg, _, _ := newTestHandler(t)
	key := strings.Repeat("c", 32)
	reg.Load([]repo.Descriptor{{
		ID:        "repo/c",
		Address:   "tcp://c",
		PublicKey: mustEncode(t, key),
		Endpoint:  strings.Repeat("3", 36),
		Path:      "/mnt/c",
	}})

	if err := h.Start(ctx); err != nil {
		t.Fatalf("starting handler: %v", err)
	}
	defer h.Stop()

	client := zmq4.NewDealer(ctx)
	defer client.Close()
	if err := client.Dial(Endpoint); err != nil {
		t.Fatalf("dialing zap endpoint: %v", err)
	}

	request := zmq4.NewMsgFrom(
		[]byte(replyVersion),
		[]byte("req-1"),
		[]byte("domain"),
		[]byte("tcp://peer:1234"),
		[]byte(""),
		[]byte("CURVE"),
		[]byte(key),
	)
	if err := client.Send(request); err != nil {
		t.Fatalf("sending request: %v", err)
	}

	replyCh := make(chan zmq4.Msg, 1)
	errCh := make(chan error, 1)
	go func() {
		reply, err := client.Recv()
		if err != nil {
			errCh <- err
			return
		}
		replyCh <- reply
	}()

	select {
	case err := <-errCh:
		t.Fatalf("receiving reply: %v", err)
	case reply := <-replyCh:
		if len(reply.Frames) != 6 {
			t.Fatalf("expected 6-frame reply, got %d: %v", len(reply.Frames), reply.Frames)
		}
		if string(reply.Frames[0]) != replyVersion {
			t.Errorf("expected version %q, got %q", replyVersion, reply.Frames[0])
		}
		if string(reply.Frames[1]) != "req-1" {
			t.Errorf("expected echoed request id, got %q", reply.Frames[1])
		}
		if string(reply.Frames[2]) != replyStatusOK {
			t.Errorf("expected status %q, got %q", replyStatusOK, reply.Frames[2])
		}
		if string(reply.Frames[4]) != "repo/c" {
			t.Errorf("expected resolved identity repo/c, got %q", reply.Frames[4])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for zap reply")
	}
}

func mustEncode(t *testing.T, raw string) string {
	t.Helper()
	encoded, err := z85.Encode([]byte(raw))
	if err != nil {
		t.Fatalf("z85 encoding test key: %v", err)
	}
	return encoded
}
