// Package repo validates and indexes repository descriptors loaded at
// startup. Registry is populated once before any frontend starts and is
// read-only for the rest of the process's life; its atomic-snapshot
// shape mirrors the lock-free-reads/mutex-serialized-writes pattern used
// elsewhere in this codebase, with the write path retained only to
// support the one-time load and tests.
package repo

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/computingfreak/DataFed/internal/z85"
)

// Descriptor is an immutable per-process-run repository record.
type Descriptor struct {
	ID        string
	Address   string
	PublicKey string
	Endpoint  string
	Path      string
}

// Validate checks the invariants required of every descriptor before it
// may enter the auth table or repo map.
func Validate(d Descriptor) error {
	if len(d.PublicKey) != z85.EncodedKeyLen {
		return fmt.Errorf("repo %q: public_key length must be %d, got %d", d.ID, z85.EncodedKeyLen, len(d.PublicKey))
	}
	if len(d.Endpoint) != 36 {
		return fmt.Errorf("repo %q: endpoint length must be 36, got %d", d.ID, len(d.Endpoint))
	}
	if !strings.HasPrefix(d.Address, "tcp://") {
		return fmt.Errorf("repo %q: address must start with tcp://, got %q", d.ID, d.Address)
	}
	if !strings.HasPrefix(d.Path, "/") {
		return fmt.Errorf("repo %q: path must start with /, got %q", d.ID, d.Path)
	}
	return nil
}

// registrySnapshot is an immutable point-in-time view of the repo
// descriptor map and the auth table derived from it.
type registrySnapshot struct {
	byID     map[string]Descriptor
	authByPK map[string]string // public key -> identity (repo id)
}

// Registry holds validated repository descriptors and the auth table
// (public-key -> identity) derived from them. Reads (Get, ResolveAuth,
// List) are lock-free; mutations (Load) serialize on a write mutex and
// swap in a new snapshot.
type Registry struct {
	snap atomic.Value // holds *registrySnapshot
	wmu  sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&registrySnapshot{
		byID:     make(map[string]Descriptor),
		authByPK: make(map[string]string),
	})
	return r
}

func (r *Registry) load() *registrySnapshot {
	return r.snap.Load().(*registrySnapshot)
}

// Load validates every candidate descriptor and replaces the registry's
// contents with the survivors. Invalid descriptors are dropped with the
// returned error slice; they never enter the repo map or auth table, so a
// startup with one invalid repo among several still starts with the
// valid ones indexed.
func (r *Registry) Load(candidates []Descriptor) []error {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	next := &registrySnapshot{
		byID:     make(map[string]Descriptor, len(candidates)),
		authByPK: make(map[string]string, len(candidates)),
	}
	var errs []error
	for _, d := range candidates {
		if err := Validate(d); err != nil {
			errs = append(errs, err)
			continue
		}
		next.byID[d.ID] = d
		next.authByPK[d.PublicKey] = d.ID
	}
	r.snap.Store(next)
	return errs
}

// Get returns the descriptor for a repo id. Lock-free.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.load().byID[id]
	return d, ok
}

// ResolveAuth looks up the persistent auth table: public key -> identity.
// This is identity-resolution tier 1, checked before transient grants or
// the directory oracle. Lock-free.
func (r *Registry) ResolveAuth(publicKey string) (identity string, ok bool) {
	identity, ok = r.load().authByPK[publicKey]
	return identity, ok
}

// List returns every currently registered descriptor.
func (r *Registry) List() []Descriptor {
	snap := r.load()
	out := make([]Descriptor, 0, len(snap.byID))
	for _, d := range snap.byID {
		out = append(out, d)
	}
	return out
}

// Len reports the number of validated descriptors currently registered.
func (r *Registry) Len() int {
	return len(r.load().byID)
}

// AuthTableLen reports the number of entries in the auth table.
func (r *Registry) AuthTableLen() int {
	return len(r.load().authByPK)
}
