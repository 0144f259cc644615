// Package fanout implements the secure and cleartext frontends, the
// internal router-to-dealer proxy that fans requests out to a worker
// pool, and the worker goroutines themselves. The accept/dispatch/
// shutdown shape generalizes the two-TCP-listener pattern used elsewhere
// in this codebase to two ZeroMQ ROUTER frontends plus an internal proxy
// hop.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/security"
	"github.com/computingfreak/DataFed/internal/worker"
)

const (
	procEndpoint    = "inproc://msg_proc"
	workersEndpoint = "inproc://workers"

	// DefaultWorkers is the default worker pool size.
	DefaultWorkers = 8
)

// origin tags which frontend a request arrived on, so its reply can be
// routed back to the correct ROUTER socket. zmq_proxy_steerable has no
// notion of "two frontends" — this is the fan-out's own bookkeeping.
type origin byte

const (
	originSecure    origin = 's'
	originCleartext origin = 'c'
)

// Config holds the fan-out's static parameters.
type Config struct {
	SecurePort    uint16
	CleartextPort uint16
	NumWorkers    int
}

// Fanout owns the secure frontend, the cleartext frontend, the internal
// proxy, and the worker pool. Exactly one of each runs at a time.
type Fanout struct {
	cfg     Config
	sec     *security.Context
	handler worker.RequestHandler
	caps    worker.Capabilities
	metrics *metrics.Collector

	secureFrontend    zmq4.Socket
	cleartextFrontend zmq4.Socket
	procRouter        zmq4.Socket
	workersDealer     zmq4.Socket

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Fanout. It does not bind any sockets until Start is called.
func New(cfg Config, sec *security.Context, handler worker.RequestHandler, caps worker.Capabilities, mc *metrics.Collector) *Fanout {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultWorkers
	}
	return &Fanout{cfg: cfg, sec: sec, handler: handler, caps: caps, metrics: mc}
}

// Start binds every socket and launches the frontend relays, the
// internal proxy loop, and the worker pool.
func (f *Fanout) Start(ctx context.Context) error {
	f.secureFrontend = zmq4.NewRouter(ctx)
	if err := f.secureFrontend.Listen(fmt.Sprintf("tcp://*:%d", f.cfg.SecurePort)); err != nil {
		return fmt.Errorf("binding secure frontend: %w", err)
	}

	f.cleartextFrontend = zmq4.NewRouter(ctx)
	if err := f.cleartextFrontend.Listen(fmt.Sprintf("tcp://*:%d", f.cfg.CleartextPort)); err != nil {
		return fmt.Errorf("binding cleartext frontend: %w", err)
	}

	f.procRouter = zmq4.NewRouter(ctx)
	if err := f.procRouter.Listen(procEndpoint); err != nil {
		return fmt.Errorf("binding internal proxy router: %w", err)
	}

	f.workersDealer = zmq4.NewDealer(ctx)
	if err := f.workersDealer.Listen(workersEndpoint); err != nil {
		return fmt.Errorf("binding internal worker dealer: %w", err)
	}

	f.stopCh = make(chan struct{})

	f.wg.Add(3)
	go f.relay(f.secureFrontend, originSecure)
	go f.relay(f.cleartextFrontend, originCleartext)
	go f.proxyLoop()

	for i := 0; i < f.cfg.NumWorkers; i++ {
		f.wg.Add(1)
		go f.runWorker(ctx, i)
	}

	return nil
}

// relay forwards every frame received on a frontend ROUTER socket into
// the internal proxy, tagging it with its origin so the reply can be
// routed back to the correct frontend.
func (f *Fanout) relay(frontend zmq4.Socket, o origin) {
	defer f.wg.Done()
	for {
		msg, err := frontend.Recv()
		if err != nil {
			select {
			case <-f.stopCh:
				return
			default:
				slog.Error("fanout: frontend recv failed", "err", err)
				continue
			}
		}
		if len(msg.Frames) == 0 {
			continue
		}
		frames := make([][]byte, 0, len(msg.Frames)+1)
		frames = append(frames, msg.Frames[0], []byte{byte(o)})
		frames = append(frames, msg.Frames[1:]...)
		if err := f.procRouter.Send(zmq4.NewMsgFrom(frames...)); err != nil {
			slog.Error("fanout: forwarding to internal proxy failed", "err", err)
		}
	}
}

// proxyLoop is the hand-rolled equivalent of zmq_proxy_steerable (no
// pure-Go implementation exists in zmq4 — see DESIGN.md). It shuttles
// frames between the internal router and the worker dealer until
// stopCh is closed.
func (f *Fanout) proxyLoop() {
	defer f.wg.Done()

	forward := make(chan zmq4.Msg, 64)
	backward := make(chan zmq4.Msg, 64)

	f.wg.Add(2)
	go f.pump(f.procRouter, forward)
	go f.pump(f.workersDealer, backward)

	for {
		select {
		case <-f.stopCh:
			return
		case msg := <-forward:
			if err := f.workersDealer.Send(msg); err != nil {
				slog.Error("fanout: proxy forward send failed", "err", err)
			}
		case msg := <-backward:
			if err := f.procRouter.Send(msg); err != nil {
				slog.Error("fanout: proxy backward send failed", "err", err)
			}
		}
	}
}

// pump continuously receives from sock and publishes onto ch until
// stopCh is closed.
func (f *Fanout) pump(sock zmq4.Socket, ch chan<- zmq4.Msg) {
	defer f.wg.Done()
	for {
		msg, err := sock.Recv()
		if err != nil {
			select {
			case <-f.stopCh:
				return
			default:
				slog.Error("fanout: internal recv failed", "err", err)
				continue
			}
		}
		select {
		case ch <- msg:
		case <-f.stopCh:
			return
		}
	}
}

// runWorker owns one dealer socket connected to the internal worker
// queue and runs the request/reply loop: complete multi-frame requests
// arrive with the peer's identity frame and origin tag prepended;
// replies are routed back the same way.
func (f *Fanout) runWorker(ctx context.Context, id int) {
	defer f.wg.Done()

	sock := zmq4.NewDealer(ctx)
	if err := sock.Dial(workersEndpoint); err != nil {
		slog.Error("fanout: worker dial failed", "worker", id, "err", err)
		return
	}
	defer sock.Close()

	workerID := fmt.Sprintf("w%d", id)
	for {
		msg, err := sock.Recv()
		if err != nil {
			select {
			case <-f.stopCh:
				return
			default:
				slog.Error("fanout: worker recv failed", "worker", id, "err", err)
				continue
			}
		}
		if len(msg.Frames) < 2 {
			continue
		}

		f.metrics.SetWorkerBusy(workerID, true)
		identity := msg.Frames[0]
		originTag := msg.Frames[1]
		request := zmq4.NewMsgFrom(append([][]byte{identity}, msg.Frames[2:]...)...)

		reply, err := f.handler.Handle(ctx, request, f.caps)
		if err != nil {
			slog.Error("fanout: request handler failed", "worker", id, "err", err)
			f.metrics.SetWorkerBusy(workerID, false)
			continue
		}

		frames := make([][]byte, 0, len(reply.Frames)+1)
		frames = append(frames, identity, originTag)
		if len(reply.Frames) > 0 {
			frames = append(frames, reply.Frames[1:]...)
		}
		if err := sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
			slog.Error("fanout: worker send failed", "worker", id, "err", err)
		}
		f.metrics.SetWorkerBusy(workerID, false)
	}
}

// Stop terminates the frontends, the proxy, and every worker. The
// worker-stop mechanism signals via stopCh rather than closing the
// dealer socket from another thread.
//
// Shutdown is meant to bound on a short linger so it cannot stall on
// undelivered frames; zmq4's Close is non-blocking and has no
// SO_LINGER-equivalent option to set (it is a pure-Go ZMTP stack, not a
// libzmq binding), so there is nothing to bound here — Close returns
// immediately and any frame still in flight is simply dropped.
func (f *Fanout) Stop() {
	close(f.stopCh)
	f.secureFrontend.Close()
	f.cleartextFrontend.Close()
	f.procRouter.Close()
	f.workersDealer.Close()
	f.wg.Wait()
}
