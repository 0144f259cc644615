// Package state holds the two pieces of mutable, process-lifetime state:
// the transient grant table and the three pending control queues, both
// protected by one "data mutex". The grant table's lock-free read path
// follows the same atomic.Value-snapshot-plus-write-mutex pattern used
// elsewhere in this codebase; the queues are plain mutex-guarded slices
// since they are drained destructively and don't fit a copy-on-write
// snapshot.
package state

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const transientGrantTTL = 30 * time.Second
const anonPrefix = "anon_"

// Grant is a transient {identity, expiry} association keyed by public key.
type Grant struct {
	Identity  string
	ExpiresAt time.Time
}

// DataDeleteEntry is one pending entry on the data_delete queue.
type DataDeleteEntry struct {
	RepoID string
	Path   string
}

// PathOpEntry is one pending entry on the path_create/path_delete queues.
// ID's first character encodes scope ('u' -> user/, else -> project/); the
// suffix after the second character is the path segment.
type PathOpEntry struct {
	RepoID string
	ID     string
}

// State is the Core's shared mutable data: the transient grant table and
// the three pending control queues, all under one data mutex.
type State struct {
	mu sync.Mutex

	grants atomic.Value // holds map[string]Grant, written only with mu held

	dataDelete []DataDeleteEntry
	pathCreate []PathOpEntry
	pathDelete []PathOpEntry
}

// New returns an empty State.
func New() *State {
	s := &State{}
	s.grants.Store(make(map[string]Grant))
	return s
}

func (s *State) loadGrants() map[string]Grant {
	return s.grants.Load().(map[string]Grant)
}

// Lock acquires the data mutex for the duration of a maintenance tick:
// the caller is expected to hold it for the entire tick body, not just
// individual operations within it.
func (s *State) Lock() {
	s.mu.Lock()
}

// Unlock releases the data mutex.
func (s *State) Unlock() {
	s.mu.Unlock()
}

// LookupTransient resolves the transient grant table by public key. This
// is identity-resolution tier 2, checked after the auth table and before
// the directory oracle, and it is deliberately lock-free: the ZAP handler
// reads it without the data mutex, tolerating a stale read. Expiry is not
// rechecked here — stale entries are removed by the maintenance loop.
func (s *State) LookupTransient(publicKey string) (identity string, ok bool) {
	g, ok := s.loadGrants()[publicKey]
	if !ok {
		return "", false
	}
	return g.Identity, true
}

// AuthorizeTransient implements authorize_transient: if
// certUID begins with "anon_", it inserts {certUID[5:] -> (identity,
// now+30s)} into the transient grant table under the data mutex.
// Otherwise it is a no-op. Returns whether an entry was inserted.
func (s *State) AuthorizeTransient(certUID, identity string) bool {
	if !strings.HasPrefix(certUID, anonPrefix) {
		return false
	}
	publicKey := certUID[len(anonPrefix):]

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.loadGrants()
	next := make(map[string]Grant, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[publicKey] = Grant{Identity: identity, ExpiresAt: time.Now().Add(transientGrantTTL)}
	s.grants.Store(next)
	return true
}

// ExpireTransientsLocked removes every grant whose expiry is strictly
// before now. The caller must hold the data mutex (via Lock/Unlock) —
// this is the maintenance loop's first per-tick step.
func (s *State) ExpireTransientsLocked(now time.Time) (removed int) {
	cur := s.loadGrants()
	next := make(map[string]Grant, len(cur))
	for k, g := range cur {
		if g.ExpiresAt.Before(now) {
			removed++
			continue
		}
		next[k] = g
	}
	if removed > 0 {
		s.grants.Store(next)
	}
	return removed
}

// GrantCount reports the current size of the transient grant table.
func (s *State) GrantCount() int {
	return len(s.loadGrants())
}

// EnqueueDataDelete appends to the data_delete queue under the data
// mutex. This operation deliberately does not verify the repo is
// known — that check happens at drain time (unlike EnqueuePathCreate
// and EnqueuePathDelete, which verify in the lifecycle controller).
func (s *State) EnqueueDataDelete(repoID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataDelete = append(s.dataDelete, DataDeleteEntry{RepoID: repoID, Path: path})
}

// EnqueuePathCreate appends to the path_create queue under the data mutex.
func (s *State) EnqueuePathCreate(repoID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pathCreate = append(s.pathCreate, PathOpEntry{RepoID: repoID, ID: id})
}

// EnqueuePathDelete appends to the path_delete queue under the data mutex.
func (s *State) EnqueuePathDelete(repoID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pathDelete = append(s.pathDelete, PathOpEntry{RepoID: repoID, ID: id})
}

// TakeDataDeleteLocked returns the full contents of the data_delete queue
// and clears it. The caller must hold the data mutex.
func (s *State) TakeDataDeleteLocked() []DataDeleteEntry {
	entries := s.dataDelete
	s.dataDelete = nil
	return entries
}

// TakePathCreateLocked returns the full contents of the path_create queue
// and clears it. The caller must hold the data mutex.
func (s *State) TakePathCreateLocked() []PathOpEntry {
	entries := s.pathCreate
	s.pathCreate = nil
	return entries
}

// TakePathDeleteLocked returns the full contents of the path_delete queue
// and clears it. The caller must hold the data mutex.
func (s *State) TakePathDeleteLocked() []PathOpEntry {
	entries := s.pathDelete
	s.pathDelete = nil
	return entries
}

// QueueDepths reports the current length of each queue, for metrics. It
// takes the data mutex itself and is safe to call from any goroutine.
func (s *State) QueueDepths() (dataDelete, pathCreate, pathDelete int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dataDelete), len(s.pathCreate), len(s.pathDelete)
}

// ResolvePathOp computes the wire path for a path_create/path_delete
// entry: repo.path + ("user/" if id[0]=='u' else "project/") + id[2:].
func ResolvePathOp(repoPath, id string) string {
	if id == "" {
		return repoPath
	}
	scope := "project/"
	if id[0] == 'u' {
		scope = "user/"
	}
	suffix := ""
	if len(id) > 2 {
		suffix = id[2:]
	}
	if !strings.HasSuffix(repoPath, "/") {
		repoPath += "/"
	}
	return repoPath + scope + suffix
}
