package store

import "database/sql"

// schemaSQL mirrors the entities of the data model: Project, Agent, Message,
// Recipient, Claim, AgentLink, ContactRequest, plus a virtual full-text
// table over (subject, body_md) kept in sync via triggers. Grounded on the
// teacher's internal/db/schema.go (raw SQL constant, IF NOT EXISTS tables,
// one index per hot lookup column), generalized from the teacher's chat-room
// schema to the mailbox/lease/policy schema this spec describes.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  human_key TEXT NOT NULL UNIQUE,
  slug TEXT NOT NULL UNIQUE,
  archive_path TEXT NOT NULL,
  created_ts INTEGER NOT NULL,
  meta TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS agents (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects(id),
  name TEXT NOT NULL,
  program TEXT,
  model TEXT,
  task_description TEXT,
  inception_ts INTEGER NOT NULL,
  last_active_ts INTEGER NOT NULL,
  contact_policy TEXT NOT NULL DEFAULT 'auto',
  UNIQUE(project_id, name)
);
CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);
CREATE INDEX IF NOT EXISTS idx_agents_last_active ON agents(last_active_ts);

CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects(id),
  thread_id TEXT NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  body_md TEXT NOT NULL DEFAULT '',
  from_agent TEXT NOT NULL,
  from_kind TEXT NOT NULL DEFAULT 'agent',
  created_ts INTEGER NOT NULL,
  importance TEXT NOT NULL DEFAULT 'normal',
  ack_required INTEGER NOT NULL DEFAULT 0,
  attachments TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_messages_project_created ON messages(project_id, created_ts);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_agent);

CREATE TABLE IF NOT EXISTS recipients (
  message_id TEXT NOT NULL REFERENCES messages(id),
  agent_name TEXT NOT NULL,
  kind TEXT NOT NULL,
  read_ts INTEGER,
  ack_ts INTEGER,
  PRIMARY KEY (message_id, agent_name, kind)
);
CREATE INDEX IF NOT EXISTS idx_recipients_agent ON recipients(agent_name);

CREATE TABLE IF NOT EXISTS claims (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_id TEXT NOT NULL REFERENCES projects(id),
  agent_name TEXT NOT NULL,
  path TEXT NOT NULL,
  exclusive INTEGER NOT NULL DEFAULT 1,
  reason TEXT,
  created_ts INTEGER NOT NULL,
  expires_ts INTEGER NOT NULL,
  released_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_claims_project ON claims(project_id);
CREATE INDEX IF NOT EXISTS idx_claims_agent ON claims(agent_name);
CREATE INDEX IF NOT EXISTS idx_claims_active ON claims(project_id, released_ts, expires_ts);

CREATE TABLE IF NOT EXISTS agent_links (
  id TEXT PRIMARY KEY,
  from_project_id TEXT NOT NULL,
  from_agent TEXT NOT NULL,
  to_project_id TEXT NOT NULL,
  to_agent TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'pending',
  created_ts INTEGER NOT NULL,
  decided_ts INTEGER,
  UNIQUE(from_project_id, from_agent, to_project_id, to_agent)
);
CREATE INDEX IF NOT EXISTS idx_agent_links_to ON agent_links(to_project_id, to_agent);

CREATE TABLE IF NOT EXISTS contact_requests (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects(id),
  from_agent TEXT NOT NULL,
  to_agent TEXT NOT NULL,
  reason TEXT,
  state TEXT NOT NULL DEFAULT 'pending',
  created_ts INTEGER NOT NULL,
  decided_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_contact_requests_to ON contact_requests(project_id, to_agent, state);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
  subject, body_md, content='messages', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
  INSERT INTO messages_fts(rowid, subject, body_md) VALUES (new.rowid, new.subject, new.body_md);
END;
CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
  INSERT INTO messages_fts(messages_fts, rowid, subject, body_md) VALUES ('delete', old.rowid, old.subject, old.body_md);
END;
CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
  INSERT INTO messages_fts(messages_fts, rowid, subject, body_md) VALUES ('delete', old.rowid, old.subject, old.body_md);
  INSERT INTO messages_fts(rowid, subject, body_md) VALUES (new.rowid, new.subject, new.body_md);
END;
`

// InitSchema creates every table, index, and trigger if absent. Safe to run
// on every open, matching the teacher's idempotent InitSchema.
func InitSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
