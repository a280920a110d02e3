package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/pkg/logger"
	"github.com/stockdesk/backend/pkg/utils"
)

const driverName = "sqlite3_stockdesk"

func init() {
	// fold() gives SQL the same case and diacritic insensitive key the extractor uses.
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", utils.Fold, true)
		},
	})
}

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	dsn := "file:" + dbPath
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS inventory_items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity_per_box INTEGER NOT NULL DEFAULT 0,
		received_quantity INTEGER NOT NULL DEFAULT 0,
		received_real INTEGER NOT NULL DEFAULT 0,
		delivered_quantity INTEGER NOT NULL DEFAULT 0,
		delivered_real INTEGER NOT NULL DEFAULT 0,
		rest_quantity INTEGER NOT NULL DEFAULT 0,
		rest_real INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_code ON inventory_items(code);

	CREATE TABLE IF NOT EXISTS product_combos (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		deleted_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS product_combo_items (
		combo_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (combo_id, position),
		FOREIGN KEY (combo_id) REFERENCES product_combos(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS movement_logs (
		id TEXT PRIMARY KEY,
		item_id TEXT,
		item_quantity INTEGER,
		status TEXT NOT NULL,
		date INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		tag TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_movement_item ON movement_logs(item_id);
	CREATE INDEX IF NOT EXISTS idx_movement_date ON movement_logs(date);

	CREATE TABLE IF NOT EXISTS movement_log_items (
		log_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (log_id, position),
		FOREIGN KEY (log_id) REFERENCES movement_logs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_movement_items_item ON movement_log_items(item_id);

	CREATE TABLE IF NOT EXISTS usage_counters (
		period_key TEXT PRIMARY KEY,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS user_usage_counters (
		user_id TEXT NOT NULL,
		date_key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date_key)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		expire_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, conversation_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_expire ON conversations(expire_at);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id, conversation_id)
			REFERENCES conversations(user_id, conversation_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(user_id, conversation_id, id);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		expected TEXT NOT NULL DEFAULT '',
		actual TEXT NOT NULL DEFAULT '',
		rating INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback(user_id, created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
