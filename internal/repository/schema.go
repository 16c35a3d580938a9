package repository

// Dialects supported by SQLStore.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

func migrations(dialect string) []string {
	switch dialect {
	case DialectMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id VARCHAR(64) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				status VARCHAR(16) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX idx_conversations_user (user_id, status, created_at)
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(64) PRIMARY KEY,
				seq BIGINT NOT NULL AUTO_INCREMENT,
				conversation_id VARCHAR(64) NOT NULL,
				role VARCHAR(16) NOT NULL,
				content TEXT NOT NULL,
				agent_id VARCHAR(64),
				created_at DATETIME(6) NOT NULL,
				UNIQUE KEY uq_messages_seq (seq),
				INDEX idx_messages_conversation (conversation_id, seq),
				FOREIGN KEY (conversation_id) REFERENCES conversations(id)
			)`,
			`CREATE TABLE IF NOT EXISTS agent_executions (
				id VARCHAR(64) PRIMARY KEY,
				conversation_id VARCHAR(64),
				agent_id VARCHAR(64) NOT NULL,
				input TEXT,
				output TEXT,
				status VARCHAR(16) NOT NULL,
				error_message TEXT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at DATETIME(6) NOT NULL,
				INDEX idx_executions_agent (agent_id, created_at)
			)`,
		}
	default:
		// sqlite orders messages by rowid instead.
		ts, seq := "DATETIME", ""
		if dialect == DialectPostgres {
			ts, seq = "TIMESTAMPTZ", " seq BIGSERIAL,"
		}
		return []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id VARCHAR(64) PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				status VARCHAR(16) NOT NULL,
				created_at ` + ts + ` NOT NULL,
				updated_at ` + ts + ` NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, status, created_at)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(64) PRIMARY KEY,` + seq + `
				conversation_id VARCHAR(64) NOT NULL,
				role VARCHAR(16) NOT NULL,
				content TEXT NOT NULL,
				agent_id VARCHAR(64),
				created_at ` + ts + ` NOT NULL,
				FOREIGN KEY (conversation_id) REFERENCES conversations(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS agent_executions (
				id VARCHAR(64) PRIMARY KEY,
				conversation_id VARCHAR(64),
				agent_id VARCHAR(64) NOT NULL,
				input TEXT,
				output TEXT,
				status VARCHAR(16) NOT NULL,
				error_message TEXT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at ` + ts + ` NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_executions_agent ON agent_executions(agent_id, created_at)`,
		}
	}
}
