package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS switch_events (
    id            TEXT PRIMARY KEY,
    at            TEXT NOT NULL,
    from_backup   TEXT,
    to_backup     TEXT NOT NULL,
    balance       REAL,
    reason        TEXT
);

CREATE TABLE IF NOT EXISTS balance_samples (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    at            TEXT NOT NULL,
    backup_id     TEXT NOT NULL,
    balance       REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_switch_events_at ON switch_events(at);
CREATE INDEX IF NOT EXISTS idx_balance_samples_at ON balance_samples(at);
CREATE INDEX IF NOT EXISTS idx_balance_samples_backup ON balance_samples(backup_id);
`
