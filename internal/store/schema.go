package store

// Schema v1 - sync runs and their batches
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per sync invocation
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  started_at DATETIME NOT NULL,
  finished_at DATETIME,
  mode TEXT NOT NULL,
  full_scan INTEGER DEFAULT 0,
  dry_run INTEGER DEFAULT 0,
  end_date TEXT,
  mappings INTEGER DEFAULT 0,
  batches INTEGER DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'running',
  error TEXT
);

-- One row per processed date context
CREATE TABLE IF NOT EXISTS batches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  context TEXT NOT NULL,
  context_ts INTEGER NOT NULL,
  files INTEGER DEFAULT 0,
  source TEXT,
  exit_code INTEGER DEFAULT 0,
  duration_ms INTEGER DEFAULT 0,
  checkpointed INTEGER DEFAULT 0,
  status TEXT NOT NULL,
  error TEXT,
  completed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batches_run_id ON batches(run_id);
`

// Schema v2 - lookup indexes for history queries
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_batches_context_ts ON batches(context_ts);
CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status, checkpointed);
`
