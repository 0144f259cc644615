// Package maintenance implements the periodic reconciler that expires
// transient grants and drains the data_delete/path_create/path_delete
// queues onto per-repo control sockets. The ticker/stop-channel shape
// follows the same run/select pattern used by this codebase's other
// periodic loops; the per-repo connection cache follows the same
// map-of-sockets idiom used elsewhere, minus lazy-create, since every
// repo's control socket is opened eagerly once the auth table is known.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/repo"
	"github.com/computingfreak/DataFed/internal/state"
)

const (
	// tickInterval is the reconciliation period.
	tickInterval = 5 * time.Second

	dataDeleteRecvTimeout = 10 * time.Second
	pathOpRecvTimeout     = 5 * time.Second
)

// Reconciler owns one dealer socket per known repo and runs the periodic
// tick that expires transient grants and drains the mutation queues.
type Reconciler struct {
	registry *repo.Registry
	state    *state.State
	metrics  *metrics.Collector

	mu    sync.Mutex
	conns map[string]zmq4.Socket

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Reconciler. Repo control sockets are not dialed until
// Start is called.
func New(registry *repo.Registry, st *state.State, mc *metrics.Collector) *Reconciler {
	return &Reconciler{
		registry: registry,
		state:    st,
		metrics:  mc,
		conns:    make(map[string]zmq4.Socket),
		stopCh:   make(chan struct{}),
	}
}

// Start dials a dealer socket to every known repo's control endpoint and
// launches the tick loop.
func (r *Reconciler) Start(ctx context.Context) error {
	for _, d := range r.registry.List() {
		sock := zmq4.NewDealer(ctx)
		if err := sock.Dial(d.Address); err != nil {
			return fmt.Errorf("dialing repo %s control socket: %w", d.ID, err)
		}
		r.conns[d.ID] = sock
	}

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop halts the tick loop and closes every repo control socket. Safe to
// call multiple times.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sock := range r.conns {
		if err := sock.Close(); err != nil {
			slog.Warn("maintenance: closing repo control socket", "repo", id, "err", err)
		}
	}
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	r.tick()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopCh:
			return
		}
	}
}

// tick holds the data mutex for its entire body, so grant expiry and the
// three queue drains observe one consistent snapshot of state.
func (r *Reconciler) tick() {
	r.state.Lock()
	defer r.state.Unlock()

	expired := r.state.ExpireTransientsLocked(time.Now())
	if expired > 0 {
		r.metrics.SetActiveGrants(r.state.GrantCount())
	}

	r.drainDataDelete()
	r.drainPathCreate()
	r.drainPathDelete()
}

func (r *Reconciler) drainDataDelete() {
	entries := r.state.TakeDataDeleteLocked()
	r.metrics.SetQueueDepth("data_delete", 0)
	for _, e := range entries {
		if _, ok := r.registry.Get(e.RepoID); !ok {
			slog.Warn("maintenance: dropping queue entry for unknown repo", "repo", e.RepoID, "queue", "data_delete")
			continue
		}
		if err := r.sendAndAwait(e.RepoID, "RepoDataDeleteRequest", e.Path, dataDeleteRecvTimeout); err != nil {
			slog.Warn("maintenance: data_delete drain stopped early", "repo", e.RepoID, "err", err)
			r.metrics.QueueTimeout("data_delete")
			return
		}
	}
	r.metrics.QueueDrained("data_delete", len(entries))
}

func (r *Reconciler) drainPathCreate() {
	entries := r.state.TakePathCreateLocked()
	r.metrics.SetQueueDepth("path_create", 0)
	for _, e := range entries {
		d, ok := r.registry.Get(e.RepoID)
		if !ok {
			slog.Warn("maintenance: dropping queue entry for unknown repo", "repo", e.RepoID, "queue", "path_create")
			continue
		}
		if err := r.sendAndAwait(e.RepoID, "RepoPathCreateRequest", state.ResolvePathOp(d.Path, e.ID), pathOpRecvTimeout); err != nil {
			slog.Warn("maintenance: path_create drain stopped early", "repo", e.RepoID, "err", err)
			r.metrics.QueueTimeout("path_create")
			return
		}
	}
	r.metrics.QueueDrained("path_create", len(entries))
}

func (r *Reconciler) drainPathDelete() {
	entries := r.state.TakePathDeleteLocked()
	r.metrics.SetQueueDepth("path_delete", 0)
	for _, e := range entries {
		d, ok := r.registry.Get(e.RepoID)
		if !ok {
			slog.Warn("maintenance: dropping queue entry for unknown repo", "repo", e.RepoID, "queue", "path_delete")
			continue
		}
		if err := r.sendAndAwait(e.RepoID, "RepoPathDeleteRequest", state.ResolvePathOp(d.Path, e.ID), pathOpRecvTimeout); err != nil {
			slog.Warn("maintenance: path_delete drain stopped early", "repo", e.RepoID, "err", err)
			r.metrics.QueueTimeout("path_delete")
			return
		}
	}
	r.metrics.QueueDrained("path_delete", len(entries))
}

// sendAndAwait sends a single {kind, path} request to repoID's control
// socket and waits for its reply, bounded by timeout. A timeout aborts
// the remainder of the caller's queue for this tick: entries already
// drained from the queue but not yet sent are discarded rather than
// retried on a later tick.
func (r *Reconciler) sendAndAwait(repoID, kind, path string, timeout time.Duration) error {
	r.mu.Lock()
	sock, ok := r.conns[repoID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no control socket for repo %s", repoID)
	}

	start := time.Now()
	msg := zmq4.NewMsgFrom([]byte(kind), []byte(path))
	if err := sock.Send(msg); err != nil {
		r.metrics.RepoError(repoID, "send_failed")
		return fmt.Errorf("sending %s to repo %s: %w", kind, repoID, err)
	}

	replyCh := make(chan error, 1)
	go func() {
		_, err := sock.Recv()
		replyCh <- err
	}()

	select {
	case err := <-replyCh:
		r.metrics.RepoRoundTrip(repoID, time.Since(start))
		if err != nil {
			r.metrics.RepoError(repoID, "recv_failed")
			return fmt.Errorf("receiving reply from repo %s: %w", repoID, err)
		}
		return nil
	case <-time.After(timeout):
		r.metrics.RepoError(repoID, "timeout")
		return fmt.Errorf("repo %s did not reply to %s within %s", repoID, kind, timeout)
	}
}
