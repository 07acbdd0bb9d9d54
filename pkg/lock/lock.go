package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// LeaderLockName is the advisory lock that defines cluster leadership.
// The holder is the only process allowed to run certificate issuance
// and renewal sweeps.
const LeaderLockName = "cluster:leader"

// heldLock records a lock this process currently owns
type heldLock struct {
	name       string
	lockID     int64
	acquiredAt time.Time
}

// Manager provides named, non-reentrant distributed locks on top of
// the store's advisory lock primitives. One Manager per process; the
// held-lock map is a constructed collaborator, never a global.
type Manager struct {
	store      storage.Store
	instanceID string
	mu         sync.Mutex
	held       map[string]*heldLock
}

// NewManager creates a lock manager bound to one store session
func NewManager(store storage.Store, instanceID string) *Manager {
	return &Manager{
		store:      store,
		instanceID: instanceID,
		held:       make(map[string]*heldLock),
	}
}

// InstanceID returns the process-wide instance identifier, assigned
// once at startup.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// LockID folds a lock name to a stable positive 32-bit integer via FNV-1a
func LockID(name string) int64 {
	h := fnv.New32a()
	h.Write([]byte(name))
	// Mask the sign bit so the id stays positive across integer widths
	return int64(h.Sum32() & 0x7fffffff)
}

// TryAcquire makes a single attempt at the named lock. Database errors
// are conservative: the lock counts as not acquired.
func (m *Manager) TryAcquire(ctx context.Context, name string) bool {
	m.mu.Lock()
	if _, ok := m.held[name]; ok {
		m.mu.Unlock()
		// Non-reentrant: a second local acquire is a bug upstream
		log.WithComponent("lock").Warn().Str("lock", name).Msg("lock already held by this instance")
		return false
	}
	m.mu.Unlock()

	id := LockID(name)
	acquired, err := m.store.TryAdvisoryLock(ctx, id)
	if err != nil {
		log.WithComponent("lock").Error().Err(err).Str("lock", name).Msg("advisory lock attempt failed")
		return false
	}
	if !acquired {
		return false
	}

	m.mu.Lock()
	m.held[name] = &heldLock{name: name, lockID: id, acquiredAt: time.Now()}
	m.mu.Unlock()

	log.WithComponent("lock").Debug().Str("lock", name).Int64("lock_id", id).Msg("lock acquired")
	return true
}

// Release drops the named lock. Releasing an unheld lock logs a
// warning and does nothing else.
func (m *Manager) Release(ctx context.Context, name string) {
	m.mu.Lock()
	hl, ok := m.held[name]
	if ok {
		delete(m.held, name)
	}
	m.mu.Unlock()

	if !ok {
		log.WithComponent("lock").Warn().Str("lock", name).Msg("release of unheld lock")
		return
	}

	if err := m.store.ReleaseAdvisoryLock(ctx, hl.lockID); err != nil {
		log.WithComponent("lock").Error().Err(err).Str("lock", name).Msg("failed to release advisory lock")
	}
}

// Holds reports whether this process currently holds the named lock.
// Pure local check; never touches the database.
func (m *Manager) Holds(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[name]
	return ok
}

// HeldLocks lists the names of all currently held locks
func (m *Manager) HeldLocks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.held))
	for name := range m.held {
		names = append(names, name)
	}
	return names
}

// WithLock acquires the named lock (up to retries attempts, fixed
// delay), runs fn, and releases on every exit path. Returns
// types.ErrLockNotAcquired when all attempts fail.
func (m *Manager) WithLock(ctx context.Context, name string, retries int, delay time.Duration, fn func(ctx context.Context) error) error {
	if retries < 1 {
		retries = 1
	}

	acquired := false
	for attempt := 0; attempt < retries; attempt++ {
		if m.TryAcquire(ctx, name) {
			acquired = true
			break
		}
		if attempt < retries-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if !acquired {
		return fmt.Errorf("%w: %s", types.ErrLockNotAcquired, name)
	}

	defer func() {
		// Release must survive fn's context being cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Release(releaseCtx, name)
	}()

	return fn(ctx)
}

// IsLeader reports whether this process holds the leader lock.
// Never attempts acquisition.
func (m *Manager) IsLeader() bool {
	return m.Holds(LeaderLockName)
}

// TryAcquireLeaderLock makes a single attempt at the leader lock
func (m *Manager) TryAcquireLeaderLock(ctx context.Context) bool {
	return m.TryAcquire(ctx, LeaderLockName)
}

// ReleaseLeaderLock drops the leader lock if held
func (m *Manager) ReleaseLeaderLock(ctx context.Context) {
	if m.Holds(LeaderLockName) {
		m.Release(ctx, LeaderLockName)
	}
}

// ReleaseAll drops every held lock; used during shutdown
func (m *Manager) ReleaseAll(ctx context.Context) {
	for _, name := range m.HeldLocks() {
		m.Release(ctx, name)
	}
}
