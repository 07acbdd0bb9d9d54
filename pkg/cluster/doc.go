/*
Package cluster maintains node membership in the shared database.

Each process upserts one cluster_nodes row. Two timers drive the
state machine active -> stale -> (deleted), with active -> inactive on
graceful shutdown:

  - heartbeat (30s): refresh last_heartbeat and project local
    advisory-lock leadership into the is_leader column. A leader that
    observes another active leader row releases its lock immediately
    (split-brain defense) before writing.
  - cleanup (45s): demote rows without a heartbeat for 120s, keep only
    the freshest of multiple leader rows, delete stale/inactive rows
    older than one hour.

Leadership truth lives in the advisory lock; the column is a read
model and multi-leader rows are a recoverable anomaly, not a
correctness failure. The admin surface exposes manual cleanup,
leader enforcement, ensure-leader and become-leader operations.
*/
package cluster
