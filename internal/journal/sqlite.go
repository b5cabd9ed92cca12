package journal

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	ts DATETIME NOT NULL,
	source TEXT NOT NULL,
	market TEXT NOT NULL,
	market_name TEXT,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	price REAL NOT NULL,
	status TEXT NOT NULL,
	reason TEXT,
	realized_pnl REAL NOT NULL,
	balance_after REAL NOT NULL,
	correlation_id TEXT,
	simulated INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
`

// SQLite stores records in a local sqlite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Append inserts one record.
func (j *SQLite) Append(rec Record) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, ts, source, market, market_name, side, size, price, status, reason,
		 realized_pnl, balance_after, correlation_id, simulated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Ts, string(rec.Source), rec.Market, rec.MarketName,
		string(rec.Side), rec.Size, rec.Price, rec.Status, rec.Reason,
		rec.RealizedPnL, rec.BalanceAfter, rec.CorrelationID, rec.Simulated,
	)
	return err
}

// Count returns the number of stored records.
func (j *SQLite) Count() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n)
	return n, err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
