/*
Package lock provides named distributed locks over the store's
session-scoped advisory lock primitives.

Lock names fold to stable positive 32-bit ids via FNV-1a, so every
process derives the same id for "cluster:leader" without a registry.
Locks are non-reentrant and single-attempt; WithLock adds bounded
retry with a fixed delay and guarantees release on every exit path.

A held lock is released only by explicit Release, connection loss, or
process death. Database errors during acquisition are treated as "not
acquired" so that failures never create phantom leadership.

The held-lock map lives on a constructed Manager, one per process,
guarded by a mutex; IsLeader is a pure local lookup and never touches
the database.
*/
package lock
