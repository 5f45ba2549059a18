package journal

// Schema is the DDL of the operation journal.
const Schema = `
CREATE TABLE IF NOT EXISTS page_operations (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    source_path TEXT NOT NULL,
    op_kind TEXT NOT NULL,
    params TEXT NOT NULL DEFAULT '{}',
    pages_before INTEGER NOT NULL,
    pages_after INTEGER NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('success', 'error')),
    error_kind TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_page_operations_session
    ON page_operations(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_page_operations_created
    ON page_operations(created_at);
`
