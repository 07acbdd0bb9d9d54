package lock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func TestLockIDStableAndPositive(t *testing.T) {
	a := LockID("cluster:leader")
	b := LockID("cluster:leader")
	if a != b {
		t.Fatalf("LockID not stable: %d != %d", a, b)
	}
	if a < 0 {
		t.Fatalf("LockID must be positive, got %d", a)
	}
	if LockID("other") == a {
		t.Error("distinct names should fold to distinct ids")
	}
}

func TestTryAcquireExcludesSecondManager(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	m1 := NewManager(store, "node-1")
	m2 := NewManager(store, "node-2")

	if !m1.TryAcquire(ctx, "sweep") {
		t.Fatal("first acquire should succeed")
	}
	if m2.TryAcquire(ctx, "sweep") {
		t.Fatal("second manager must not acquire a held lock")
	}

	m1.Release(ctx, "sweep")

	if !m2.TryAcquire(ctx, "sweep") {
		t.Fatal("released lock must be acquirable by the other manager")
	}
}

func TestTryAcquireNonReentrant(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m := NewManager(store, "node-1")

	if !m.TryAcquire(ctx, "x") {
		t.Fatal("acquire failed")
	}
	if m.TryAcquire(ctx, "x") {
		t.Fatal("locks are non-reentrant")
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m := NewManager(store, "node-1")

	boom := errors.New("boom")
	err := m.WithLock(ctx, "job", 1, 0, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if m.Holds("job") {
		t.Error("lock must be released after fn error")
	}
	if !m.TryAcquire(ctx, "job") {
		t.Error("lock must be acquirable again")
	}
}

func TestWithLockExhaustedRetries(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	holder := NewManager(store, "node-1")
	if !holder.TryAcquire(ctx, "job") {
		t.Fatal("setup acquire failed")
	}

	m := NewManager(store, "node-2")
	ran := false
	err := m.WithLock(ctx, "job", 2, time.Millisecond, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, types.ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	if ran {
		t.Error("fn must not run without the lock")
	}
}

func TestLeaderHelpers(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m := NewManager(store, "node-1")

	if m.IsLeader() {
		t.Fatal("fresh manager must not be leader")
	}
	if !m.TryAcquireLeaderLock(ctx) {
		t.Fatal("leader lock acquire failed")
	}
	if !m.IsLeader() {
		t.Fatal("IsLeader must reflect the held lock")
	}

	m.ReleaseLeaderLock(ctx)
	if m.IsLeader() {
		t.Fatal("leadership must end on release")
	}
}

func TestReleaseAll(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m := NewManager(store, "node-1")

	m.TryAcquire(ctx, "a")
	m.TryAcquire(ctx, "b")
	m.ReleaseAll(ctx)

	if len(m.HeldLocks()) != 0 {
		t.Errorf("held locks remain: %v", m.HeldLocks())
	}
}

func TestNewInstanceIDShape(t *testing.T) {
	id := NewInstanceID()
	if parts := strings.Split(id, "-"); len(parts) < 3 {
		t.Errorf("instance id %q missing hostname/epoch/nonce parts", id)
	}
	if id == NewInstanceID() {
		t.Error("instance ids must be unique")
	}
}
