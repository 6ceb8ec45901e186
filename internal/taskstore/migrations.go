package taskstore

const schema = `
CREATE TABLE IF NOT EXISTS shortlist (
    number INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status TEXT NOT NULL DEFAULT 'queueing',
    params TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    started_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status);

CREATE TABLE IF NOT EXISTS results (
    task_id INTEGER PRIMARY KEY,
    task_name TEXT NOT NULL,
    status TEXT NOT NULL,
    params TEXT NOT NULL,
    failed_tests TEXT,
    logs TEXT,
    finished_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_finished ON results(finished_at);
`
