package sqlite

// schema creates every table at the current schema level (3) in one shot,
// used when initializing a fresh database. The Migrator (§4.12) is
// responsible for bringing an older on-disk database up to this level
// incrementally; this constant must stay in sync with the end state of its
// migration steps.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    root_path TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    content TEXT NOT NULL,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT,
    confirmed INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}',
    is_stale INTEGER NOT NULL DEFAULT 0,
    stale_reason TEXT,
    last_accessed TEXT,
    is_archived INTEGER NOT NULL DEFAULT 0,
    consolidated_into TEXT,
    confidence_score REAL NOT NULL DEFAULT 1.0,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id);
CREATE INDEX IF NOT EXISTS idx_memories_confirmed ON memories(project_id, confirmed);
CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(project_id, is_archived);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS embedding_references (
    memory_id TEXT PRIMARY KEY,
    vector_id TEXT NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS memory_versions (
    id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL,
    content TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memory_versions_memory ON memory_versions(memory_id);

CREATE TABLE IF NOT EXISTS memory_links (
    id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL,
    commit_sha TEXT NOT NULL,
    link_type TEXT NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memory_links_memory ON memory_links(memory_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_commit ON memory_links(commit_sha);

CREATE TABLE IF NOT EXISTS memory_relations (
    id TEXT PRIMARY KEY,
    source_memory_id TEXT NOT NULL,
    target_memory_id TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    created_at TEXT NOT NULL,
    created_by TEXT NOT NULL,
    FOREIGN KEY (source_memory_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (target_memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memory_relations_source ON memory_relations(source_memory_id);
CREATE INDEX IF NOT EXISTS idx_memory_relations_target ON memory_relations(target_memory_id);

CREATE TABLE IF NOT EXISTS conflict_log (
    id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL,
    local_content TEXT,
    remote_content TEXT,
    resolution TEXT NOT NULL,
    resolved_at TEXT NOT NULL,
    resolved_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_conflict_log_memory ON conflict_log(memory_id);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL,
    description TEXT
);
`
