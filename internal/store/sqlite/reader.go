package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/abhijiths101/flowsurface/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for startup rebuilds.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads a session's candles with key >= fromKey, ordered by key
// ascending for correct replay order. The bound is inclusive: tick sessions
// key their first candle at 0, so fromKey 0 reads the full history.
func (r *Reader) ReadCandles(session string, fromKey uint64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT key, open, high, low, close, buy_volume, sell_volume
		FROM candles
		WHERE session = ? AND key >= ?
		ORDER BY key ASC
	`, session, int64(fromKey))
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var key int64
		if err := rows.Scan(&key, &c.Open, &c.High, &c.Low, &c.Close, &c.BuyVolume, &c.SellVolume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.Key = uint64(key)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Sessions lists the distinct sessions with stored history.
func (r *Reader) Sessions() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT session FROM candles ORDER BY session`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
