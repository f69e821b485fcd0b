package db

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	owner_id    TEXT NOT NULL,
	layout_kind TEXT NOT NULL DEFAULT 'tree',
	auto_layout INTEGER NOT NULL DEFAULT 0,
	shared      INTEGER NOT NULL DEFAULT 0,
	read_only   INTEGER NOT NULL DEFAULT 0,
	share_id    TEXT,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
	doc_id              TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	id                  TEXT NOT NULL,
	parent_id           TEXT,
	children            TEXT NOT NULL DEFAULT '[]',
	x                   REAL NOT NULL DEFAULT 0,
	y                   REAL NOT NULL DEFAULT 0,
	level               INTEGER NOT NULL DEFAULT 0,
	type                TEXT NOT NULL,
	label               TEXT NOT NULL DEFAULT '',
	manually_positioned INTEGER NOT NULL DEFAULT 0,
	shared              INTEGER NOT NULL DEFAULT 0,
	position            INTEGER NOT NULL,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	PRIMARY KEY (doc_id, id)
);
CREATE INDEX IF NOT EXISTS idx_nodes_doc_position ON nodes(doc_id, position);

CREATE TABLE IF NOT EXISTS active_editors (
	doc_id       TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	last_seen    INTEGER NOT NULL,
	PRIMARY KEY (doc_id, user_id)
);
`

// nodeColumns is the column order scanNode expects.
const nodeColumns = `id, parent_id, children, x, y, level, type, label,
	manually_positioned, shared, created_at, updated_at`

// documentColumns is the column order scanDocument expects.
const documentColumns = `id, title, owner_id, layout_kind, auto_layout,
	shared, read_only, share_id, created_at, updated_at`
