package procedure

// Schema is the routes table read by Reload. Any write bumps
// PRAGMA data_version, which Watch polls.
//
// Strategies:
//   - "local":   in-process handler registered with RegisterLocal.
//   - "jsonrpc": forwarded to another chirp instance's /rpc endpoint.
//   - "noop":    disabled; every call reports NotFound.
//
// config holds per-route JSON: timeout_ms, max_retries, backoff_ms,
// breaker_threshold.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    procedure  TEXT PRIMARY KEY,
    strategy   TEXT NOT NULL CHECK(strategy IN ('local', 'jsonrpc', 'noop')),
    endpoint   TEXT,
    config     TEXT DEFAULT '{}',
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TRIGGER IF NOT EXISTS trg_routes_updated_at
AFTER UPDATE OF strategy, endpoint, config ON routes
FOR EACH ROW
BEGIN
    UPDATE routes SET updated_at = strftime('%s', 'now') WHERE procedure = NEW.procedure;
END;
`
