package collections

// migration is one schema step; versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	columns       TEXT NOT NULL DEFAULT '[]',
	data_rows     TEXT NOT NULL DEFAULT '[]',
	dtypes        TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL,
	last_modified TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collection_history (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	operation     TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	success       INTEGER NOT NULL,
	output        TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	shape_before  TEXT,
	shape_after   TEXT
);

CREATE INDEX IF NOT EXISTS idx_collection_history_collection ON collection_history(collection_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
