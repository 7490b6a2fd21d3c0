package storage

const schema = `
-- The 'cards' table stores every flashcard with its review state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    phrase TEXT NOT NULL,
    language TEXT NOT NULL,
    created_at INTEGER NOT NULL,      -- unix milliseconds
    next_review_at INTEGER NOT NULL,  -- unix milliseconds
    last_interval INTEGER NOT NULL DEFAULT 0,
    repetition_count INTEGER NOT NULL DEFAULT 0,
    easiness_factor REAL NOT NULL DEFAULT 2.5,
    status TEXT NOT NULL DEFAULT 'new',
    times_reviewed INTEGER NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    last_exam_score REAL,
    enrichment TEXT NOT NULL DEFAULT '{}',           -- JSON
    pronunciation_history TEXT NOT NULL DEFAULT '[]', -- JSON
    sentence_history TEXT NOT NULL DEFAULT '[]',      -- JSON
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_language_due ON cards(language, next_review_at);

-- The 'exam_reports' table is an append-only log of finished exams.
CREATE TABLE IF NOT EXISTS exam_reports (
    id TEXT PRIMARY KEY,
    date INTEGER NOT NULL,  -- unix milliseconds
    language TEXT NOT NULL,
    body TEXT NOT NULL      -- JSON encoded report
);

-- The 'sources' table tracks deck origins, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    language TEXT NOT NULL,
    last_scanned DATETIME
);
`
