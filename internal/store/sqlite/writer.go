package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/abhijiths101/flowsurface/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// SessionCandle pairs a finalized candle with the chart session it belongs
// to, for persistence.
type SessionCandle struct {
	Session string
	Candle  model.Candle
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// Only finalized candles are persisted; indicator output is always derived
// and rebuilt from this history on startup.
type Writer struct {
	db *sql.DB

	// OnCommit, if set, is called after every successful batch commit.
	OnCommit func(took time.Duration, rows int)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			session     TEXT    NOT NULL,
			key         INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			buy_volume  REAL    NOT NULL,
			sell_volume REAL    NOT NULL,
			PRIMARY KEY (session, key)
		);
	`)
	return err
}

// Run reads finalized candles from candleCh and inserts them in batched
// transactions. Flushes every batchSize candles OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan SessionCandle) {
	batch := make([]SessionCandle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			took := time.Since(start)
			log.Printf("[sqlite] committed %d candles in %v", len(batch), took)
			if w.OnCommit != nil {
				w.OnCommit(took, len(batch))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case sc, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, sc)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(batch []SessionCandle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (session, key, open, high, low, close, buy_volume, sell_volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sc := range batch {
		c := sc.Candle
		_, err := stmt.Exec(sc.Session, int64(c.Key), c.Open, c.High, c.Low, c.Close, c.BuyVolume, c.SellVolume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastKey returns the greatest stored candle key for a session.
// ok is false if the session has no stored candles.
func (w *Writer) LastKey(session string) (uint64, bool, error) {
	var key sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(key) FROM candles WHERE session = ?`,
		session,
	).Scan(&key)
	if err != nil {
		return 0, false, err
	}
	if !key.Valid {
		return 0, false, nil
	}
	return uint64(key.Int64), true, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
