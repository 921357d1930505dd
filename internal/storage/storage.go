// Package storage provides SQLite-backed persistence for deals,
// per-cycle history rows, dynamic configuration, and the subscriber
// registry.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/promodescuentos/dealwatcher/internal/models"
	_ "modernc.org/sqlite"
)

// SeedDefaults are the recognized SystemConfig keys and their seed
// values (spec §3). Every Get falls back to these when a key is missing.
var SeedDefaults = map[string]float64{
	"viral_threshold": 50.0,
	"min_seed_temp":   15.0,
	"gravity":         1.2,
	"score_tier_4":    500.0,
	"score_tier_3":    200.0,
	"score_tier_2":    100.0,
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath. An empty dbPath
// defaults to $TMPDIR/dealwatcher/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "dealwatcher", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // one connection: all reads and writes are serialized through it
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS deals (
			id                  TEXT PRIMARY KEY,
			url                 TEXT NOT NULL UNIQUE,
			title               TEXT NOT NULL,
			merchant            TEXT,
			image_url           TEXT,
			price               REAL,
			discount            REAL,
			coupon              TEXT,
			description         TEXT,
			published_at        INTEGER NOT NULL,
			expired             INTEGER NOT NULL DEFAULT 0,
			max_rating_notified INTEGER NOT NULL DEFAULT 0,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deal_history (
			id                    TEXT PRIMARY KEY,
			deal_id               TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
			observed_at           INTEGER NOT NULL,
			temperature           REAL NOT NULL,
			hours_since_published REAL NOT NULL,
			velocity              REAL NOT NULL,
			viral_score           REAL NOT NULL,
			final_score           REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deal_history_deal_observed ON deal_history(deal_id, observed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS system_config (
			key   TEXT PRIMARY KEY,
			value REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			recipient_id TEXT PRIMARY KEY
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertDeal inserts a deal if its URL is unknown, otherwise updates its
// mutable attributes. It never lowers max_rating_notified (spec §4.A).
// Returns the deal's ID.
func (s *Storage) UpsertDeal(ctx context.Context, raw models.RawDeal) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := s.upsertDealTx(ctx, tx, raw)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit upsert: %w", err)
	}
	return id, nil
}

func (s *Storage) upsertDealTx(ctx context.Context, tx *sql.Tx, raw models.RawDeal) (string, error) {
	now := time.Now()

	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM deals WHERE url = ?`, raw.URL).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deals
				(id, url, title, merchant, image_url, price, discount, coupon, description,
				 published_at, expired, max_rating_notified, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,0,?,?)`,
			id, raw.URL, raw.Title, raw.Merchant, raw.ImageURL, raw.Price, raw.Discount,
			raw.Coupon, raw.Description, raw.PublishedAt.UnixNano(), boolToInt(raw.Expired),
			now.UnixNano(), now.UnixNano(),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert deal: %w", err)
		}
		return id, nil
	case err != nil:
		return "", fmt.Errorf("failed to look up deal: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE deals SET
			title=?, merchant=?, image_url=?, price=?, discount=?, coupon=?, description=?,
			expired=?, updated_at=?
		WHERE id=?`,
		raw.Title, raw.Merchant, raw.ImageURL, raw.Price, raw.Discount, raw.Coupon,
		raw.Description, boolToInt(raw.Expired), now.UnixNano(), id,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update deal: %w", err)
	}
	return id, nil
}

// AppendHistory inserts one history row stamped with h.ObservedAt, or
// with the current time when h.ObservedAt is zero.
func (s *Storage) AppendHistory(ctx context.Context, dealID string, h models.DealHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.appendHistoryTx(ctx, tx, dealID, h); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) appendHistoryTx(ctx context.Context, tx *sql.Tx, dealID string, h models.DealHistory) error {
	observedAt := h.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deal_history
			(id, deal_id, observed_at, temperature, hours_since_published, velocity, viral_score, final_score)
		VALUES (?,?,?,?,?,?,?,?)`,
		uuid.New().String(), dealID, observedAt.UnixNano(), h.Temperature,
		h.HoursSincePublished, h.Velocity, h.ViralScore, h.FinalScore,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// UpdateMaxRating writes new_rating only if it is greater than the
// deal's current max_rating_notified (spec §4.A).
func (s *Storage) UpdateMaxRating(ctx context.Context, dealID string, newRating int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deals SET max_rating_notified = ?, updated_at = ?
		WHERE id = ? AND max_rating_notified < ?`,
		newRating, time.Now().UnixNano(), dealID, newRating,
	)
	if err != nil {
		return fmt.Errorf("failed to update max rating: %w", err)
	}
	return nil
}

// PersistCycle performs UpsertDeal + AppendHistory in one transaction, so
// a crash leaves both applied or neither. max_rating_notified is not part
// of this transaction: CommitNotification updates it separately, after a
// successful notify. If ctx is already done, nothing is written; once the
// transaction has begun, a later cancellation of ctx does not abort it.
func (s *Storage) PersistCycle(ctx context.Context, raw models.RawDeal, h models.DealHistory) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("persist cycle cancelled: %w", err)
	}
	ctx = context.WithoutCancel(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := s.upsertDealTx(ctx, tx, raw)
	if err != nil {
		return "", err
	}
	h.DealID = id
	if err := s.appendHistoryTx(ctx, tx, id, h); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit cycle persistence: %w", err)
	}
	return id, nil
}

// CommitNotification applies update_max_rating after a successful notify
// fan-out (spec §4.D step 5 / §7: "duplicate notifications must not occur").
func (s *Storage) CommitNotification(ctx context.Context, dealID string, rating int) error {
	return s.UpdateMaxRating(ctx, dealID, rating)
}

// GetDeal returns a deal by its ID.
func (s *Storage) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dealCols+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deal not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return d, nil
}

// GetDealByURL returns a deal by its canonical URL, or nil if unknown.
func (s *Storage) GetDealByURL(ctx context.Context, url string) (*models.Deal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dealCols+` FROM deals WHERE url = ?`, url)
	d, err := scanDeal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// GetPriorSnapshot returns the most recent history row strictly before
// beforeTime, or nil if none exists (spec §4.A get_prior_snapshot).
func (s *Storage) GetPriorSnapshot(ctx context.Context, dealID string, beforeTime time.Time) (*models.DealHistory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, deal_id, observed_at, temperature, hours_since_published, velocity, viral_score, final_score
		FROM deal_history
		WHERE deal_id = ? AND observed_at < ?
		ORDER BY observed_at DESC
		LIMIT 1`, dealID, beforeTime.UnixNano())

	var h models.DealHistory
	var observedAtNano int64
	err := row.Scan(&h.ID, &h.DealID, &observedAtNano, &h.Temperature, &h.HoursSincePublished,
		&h.Velocity, &h.ViralScore, &h.FinalScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prior snapshot: %w", err)
	}
	h.ObservedAt = time.Unix(0, observedAtNano)
	return &h, nil
}

// ListRecipients returns the subscriber registry's recipient IDs
// (spec §6 Subscriber registry contract).
func (s *Storage) ListRecipients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT recipient_id FROM subscribers`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeedRecipients inserts any recipient IDs not already present, for
// operability at startup (the core never manages subscriptions itself).
func (s *Storage) SeedRecipients(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO subscribers (recipient_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("failed to seed recipient %s: %w", id, err)
		}
	}
	return nil
}

const dealCols = `id, url, title, merchant, image_url, price, discount, coupon, description,
	published_at, expired, max_rating_notified, created_at, updated_at`

func scanDeal(scan func(...any) error) (*models.Deal, error) {
	var d models.Deal
	var publishedAtNano, createdAtNano, updatedAtNano int64
	var expired int
	err := scan(
		&d.ID, &d.URL, &d.Title, &d.Merchant, &d.ImageURL, &d.Price, &d.Discount,
		&d.Coupon, &d.Description, &publishedAtNano, &expired, &d.MaxRatingNotified,
		&createdAtNano, &updatedAtNano,
	)
	if err != nil {
		return nil, err
	}
	d.Expired = expired != 0
	d.PublishedAt = time.Unix(0, publishedAtNano)
	d.CreatedAt = time.Unix(0, createdAtNano)
	d.UpdatedAt = time.Unix(0, updatedAtNano)
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
