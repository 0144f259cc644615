// Package lifecycle wires every owned goroutine-running component —
// the ZAP handler, the fan-out, the maintenance reconciler, and the
// transfer manager — behind one Start/Stop pair, and implements
// worker.Capabilities so workers get a narrow back-reference instead of a
// full server pointer, avoiding a cyclic ownership graph. The
// cancel()+Close()+wg.Wait() shutdown shape follows the same pattern
// used by this codebase's other owned components.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/computingfreak/DataFed/internal/directory"
	"github.com/computingfreak/DataFed/internal/fanout"
	"github.com/computingfreak/DataFed/internal/maintenance"
	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/repo"
	"github.com/computingfreak/DataFed/internal/security"
	"github.com/computingfreak/DataFed/internal/state"
	"github.com/computingfreak/DataFed/internal/transfer"
	"github.com/computingfreak/DataFed/internal/worker"
	"github.com/computingfreak/DataFed/internal/zap"
)

// Owned is any component this controller starts and stops as a unit.
type Owned interface {
	Start(ctx context.Context) error
	Stop()
}

// Controller is the server's single composition root. It owns every
// long-running component and is the concrete type workers see through
// the narrower worker.Capabilities interface.
type Controller struct {
	registry *repo.Registry
	state    *state.State
	oracle   directory.Oracle
	metrics  *metrics.Collector
	transfer *transfer.Manager

	zapHandler *zap.Handler
	fanoutSvc  *fanout.Fanout
	reconciler *maintenance.Reconciler

	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New assembles a Controller from already-constructed collaborators.
// Construction does not start anything; call Start to bring the server up.
func New(sec *security.Context, registry *repo.Registry, st *state.State, oracle directory.Oracle, mc *metrics.Collector, tm *transfer.Manager, fanoutCfg fanout.Config, handler worker.RequestHandler) *Controller {
	c := &Controller{
		registry: registry,
		state:    st,
		oracle:   oracle,
		metrics:  mc,
		transfer: tm,
	}
	c.zapHandler = zap.New(sec, registry, st, oracle, mc)
	c.fanoutSvc = fanout.New(fanoutCfg, sec, handler, c, mc)
	c.reconciler = maintenance.New(registry, st, mc)
	return c
}

// Start brings up every owned component in order: the ZAP handler first,
// so inproc://zeromq.zap.01 is bound before the fan-out's frontends start
// accepting connections, then the fan-out, the maintenance reconciler and
// the transfer manager. The fan-out does not route its peers through the
// ZAP handler.
func (c *Controller) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("lifecycle: controller already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.zapHandler.Start(runCtx); err != nil {
		c.running.Store(false)
		return fmt.Errorf("starting ZAP handler: %w", err)
	}
	if err := c.fanoutSvc.Start(runCtx); err != nil {
		c.zapHandler.Stop()
		c.running.Store(false)
		return fmt.Errorf("starting fan-out: %w", err)
	}
	if err := c.reconciler.Start(runCtx); err != nil {
		c.fanoutSvc.Stop()
		c.zapHandler.Stop()
		c.running.Store(false)
		return fmt.Errorf("starting maintenance reconciler: %w", err)
	}
	if err := c.transfer.Start(); err != nil {
		c.reconciler.Stop()
		c.fanoutSvc.Stop()
		c.zapHandler.Stop()
		c.running.Store(false)
		return fmt.Errorf("starting transfer manager: %w", err)
	}

	slog.Info("lifecycle: controller started")
	return nil
}

// Stop tears every owned component down in reverse order and waits for
// it to finish. Safe to call once per successful Start.
func (c *Controller) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}

	c.transfer.Stop()
	c.reconciler.Stop()
	c.fanoutSvc.Stop()
	c.zapHandler.Stop()
	c.cancel()
	c.wg.Wait()

	slog.Info("lifecycle: controller stopped")
}

// Running reports whether the controller is currently started.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// The methods below implement worker.Capabilities, giving workers a
// narrow, non-owning handle onto the controller instead of a full
// server reference.

// EnqueueDataDelete implements worker.Capabilities.
func (c *Controller) EnqueueDataDelete(repoID, path string) {
	c.state.EnqueueDataDelete(repoID, path)
}

// EnqueuePathCreate implements worker.Capabilities. Unlike
// EnqueueDataDelete, this verifies the repo is known before enqueueing.
func (c *Controller) EnqueuePathCreate(repoID, id string) {
	if _, ok := c.registry.Get(repoID); !ok {
		return
	}
	c.state.EnqueuePathCreate(repoID, id)
}

// EnqueuePathDelete implements worker.Capabilities. Same known-repo check
// as EnqueuePathCreate.
func (c *Controller) EnqueuePathDelete(repoID, id string) {
	if _, ok := c.registry.Get(repoID); !ok {
		return
	}
	c.state.EnqueuePathDelete(repoID, id)
}

// AuthorizeTransient implements worker.Capabilities.
func (c *Controller) AuthorizeTransient(certUID, identity string) bool {
	ok := c.state.AuthorizeTransient(certUID, identity)
	if ok {
		c.metrics.GrantIssued()
		c.metrics.SetActiveGrants(c.state.GrantCount())
	}
	return ok
}

// GetRepoAddress implements worker.Capabilities.
func (c *Controller) GetRepoAddress(repoID string) (string, bool) {
	d, ok := c.registry.Get(repoID)
	if !ok {
		return "", false
	}
	return d.Address, true
}

// HandOffTransfer implements worker.Capabilities.
func (c *Controller) HandOffTransfer(job transfer.Job) error {
	c.transfer.Submit(job)
	c.metrics.TransferSubmitted()
	return nil
}
