package metadatastore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/errtypes"
	"github.com/wallpaperhq/ingest/pkg/wallpaper"
)

// Config mirrors the teacher's driver-config-as-a-map decoding pattern:
// a flat struct decoded out of a generic map via mapstructure, so it can
// be built either from config.Config directly or from a plugin-style map
// in future without changing this type.
type Config struct {
	DBUsername string `mapstructure:"db_username"`
	DBPassword string `mapstructure:"db_password"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBName     string `mapstructure:"db_name"`
}

// SQLStore is a Port implementation over the wallpapers table.
type SQLStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLStore decodes m into a Config, opens a MySQL connection pool, and
// returns a SQLStore. It does not create the schema; call EnsureSchema for
// that.
func NewSQLStore(m map[string]interface{}, c clock.Clock) (*SQLStore, error) {
	cfg := &Config{}
	if err := mapstructure.Decode(m, cfg); err != nil {
		return nil, errors.Wrap(err, "decoding metadata store config")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.DBUsername, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening metadata store connection")
	}
	return &SQLStore{db: db, clock: c}, nil
}

// NewSQLStoreFromDB wraps an already-open *sql.DB, for tests driven against
// a real or containerized MySQL instance.
func NewSQLStoreFromDB(db *sql.DB, c clock.Clock) *SQLStore {
	return &SQLStore{db: db, clock: c}
}

// NewSQLStoreFromDSN opens a MySQL connection pool directly from a
// go-sql-driver/mysql DSN, for callers (the composition root) that already
// hold a DATABASE_URL in that form rather than discrete fields.
func NewSQLStoreFromDSN(dsn string, c clock.Clock) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening metadata store connection")
	}
	return &SQLStore{db: db, clock: c}, nil
}

// EnsureSchema creates the wallpapers table and its indexes if they don't
// already exist.
//
// MySQL has no partial/filtered unique index, so invariant 3 — uniqueness
// of (userId, contentHash) restricted to {stored, processing, completed} —
// is enforced in application code inside Transition's row-locked
// transaction rather than by a database constraint.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS wallpapers (
	id                 VARCHAR(64) PRIMARY KEY,
	user_id            VARCHAR(128) NOT NULL,
	content_hash       VARCHAR(64) NULL,
	upload_state       VARCHAR(16) NOT NULL,
	state_changed_at   DATETIME(3) NOT NULL,
	upload_attempts    INT NOT NULL DEFAULT 0,
	processing_error   TEXT NULL,
	file_type          VARCHAR(16) NULL,
	mime_type          VARCHAR(128) NULL,
	file_size_bytes    BIGINT NULL,
	width              INT NULL,
	height             INT NULL,
	aspect_ratio       DOUBLE NULL,
	storage_key        VARCHAR(512) NULL,
	storage_bucket     VARCHAR(255) NULL,
	original_filename  VARCHAR(255) NULL,
	uploaded_at        DATETIME(3) NOT NULL,
	updated_at         DATETIME(3) NOT NULL,
	INDEX idx_wallpapers_user_id (user_id),
	INDEX idx_wallpapers_upload_state (upload_state),
	INDEX idx_wallpapers_state_changed_at (state_changed_at),
	INDEX idx_wallpapers_uploaded_at (uploaded_at),
	INDEX idx_wallpapers_user_hash (user_id, content_hash)
)`)
	return err
}

// Close implements Port.
func (s *SQLStore) Close() error { return s.db.Close() }

// InsertIntent implements Port.
func (s *SQLStore) InsertIntent(ctx context.Context, w *wallpaper.Wallpaper) error {
	now := s.clock.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO wallpapers (id, user_id, content_hash, upload_state, state_changed_at, upload_attempts, uploaded_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		w.ID, w.UserID, w.ContentHash, wallpaper.StateInitiated, now, now, now)
	if err != nil {
		return errors.Wrap(err, "inserting intent")
	}
	return nil
}

// FindActiveByUserAndHash implements Port.
func (s *SQLStore) FindActiveByUserAndHash(ctx context.Context, userID, contentHash string) (*wallpaper.Wallpaper, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM wallpapers
WHERE user_id = ? AND content_hash = ? AND upload_state IN ('stored', 'processing', 'completed')
ORDER BY uploaded_at ASC LIMIT 1`, userID, contentHash)
	w, err := scanWallpaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errtypes.NotFound("no active record for user+hash")
	}
	return w, err
}

// Get implements Port.
func (s *SQLStore) Get(ctx context.Context, id string) (*wallpaper.Wallpaper, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM wallpapers WHERE id = ?`, id)
	w, err := scanWallpaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errtypes.NotFound(id)
	}
	return w, err
}

// GetCurrentState implements Port.
func (s *SQLStore) GetCurrentState(ctx context.Context, id string) (wallpaper.UploadState, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT upload_state FROM wallpapers WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errtypes.NotFound(id)
	}
	if err != nil {
		return "", err
	}
	return wallpaper.UploadState(state), nil
}

// Transition implements Port. It runs inside a transaction that locks the
// target row (SELECT ... FOR UPDATE), so the edge check and the write are
// indivisible with respect to any other transitioning writer — a losing
// concurrent caller blocks on the row lock and then observes a stale
// fromState, returning errtypes.ConcurrentTransition per spec.md §4.1.
//
// The uploading -> stored edge additionally locks and checks any other row
// sharing (user_id, content_hash) in {stored, processing, completed} before
// committing, which is what makes invariant 3's uniqueness hold despite
// MySQL having no filtered unique index to enforce it declaratively.
func (s *SQLStore) Transition(ctx context.Context, id string, fromState, newState wallpaper.UploadState, patch Patch) (*wallpaper.Wallpaper, error) {
	if err := wallpaper.ValidateTransition(fromState, newState); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var currentState, userID string
	var contentHash sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT upload_state, user_id, content_hash FROM wallpapers WHERE id = ? FOR UPDATE`, id).Scan(&currentState, &userID, &contentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errtypes.NotFound(id)
	}
	if err != nil {
		return nil, err
	}
	if wallpaper.UploadState(currentState) != fromState {
		return nil, errtypes.ConcurrentTransition(id)
	}

	if newState == wallpaper.StateStored && contentHash.Valid {
		var rival string
		err = tx.QueryRowContext(ctx, `
SELECT id FROM wallpapers
WHERE user_id = ? AND content_hash = ? AND upload_state IN ('stored', 'processing', 'completed') AND id != ?
FOR UPDATE LIMIT 1`, userID, contentHash.String, id).Scan(&rival)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			return nil, errtypes.AlreadyExists(fmt.Sprintf("active record %s already holds content hash for this user", rival))
		}
	}

	now := s.clock.Now()
	_, err = tx.ExecContext(ctx, `
UPDATE wallpapers SET
	upload_state = ?, state_changed_at = ?, updated_at = ?,
	content_hash = COALESCE(?, content_hash),
	processing_error = COALESCE(?, processing_error),
	file_type = COALESCE(?, file_type),
	mime_type = COALESCE(?, mime_type),
	file_size_bytes = COALESCE(?, file_size_bytes),
	width = COALESCE(?, width),
	height = COALESCE(?, height),
	aspect_ratio = COALESCE(?, aspect_ratio),
	storage_key = COALESCE(?, storage_key),
	storage_bucket = COALESCE(?, storage_bucket),
	original_filename = COALESCE(?, original_filename)
WHERE id = ?`,
		newState, now, now,
		patch.ContentHash, patch.ProcessingError, patch.FileType, patch.MIMEType,
		patch.FileSizeBytes, patch.Width, patch.Height, patch.AspectRatio,
		patch.StorageKey, patch.StorageBucket, patch.OriginalFilename,
		id)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, selectColumns+` FROM wallpapers WHERE id = ?`, id)
	w, err := scanWallpaper(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return w, nil
}

// IncrementAttempts implements Port.
func (s *SQLStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	now := s.clock.Now()
	_, err := s.db.ExecContext(ctx, `UPDATE wallpapers SET upload_attempts = upload_attempts + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return 0, err
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT upload_attempts FROM wallpapers WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

// List implements Port.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*wallpaper.Wallpaper, error) {
	query := selectColumns + ` FROM wallpapers WHERE upload_state = ? AND state_changed_at < ?`
	if filter.RequireFull {
		query += ` AND content_hash IS NOT NULL AND file_type IS NOT NULL AND mime_type IS NOT NULL
			AND file_size_bytes IS NOT NULL AND width IS NOT NULL AND height IS NOT NULL
			AND storage_key IS NOT NULL AND storage_bucket IS NOT NULL`
	}
	rows, err := s.db.QueryContext(ctx, query, filter.State, filter.OlderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*wallpaper.Wallpaper
	for rows.Next() {
		w, err := scanWallpaper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Delete implements Port.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wallpapers WHERE id = ?`, id)
	return err
}

const selectColumns = `SELECT
	id, user_id, content_hash, upload_state, state_changed_at, upload_attempts, processing_error,
	file_type, mime_type, file_size_bytes, width, height, aspect_ratio,
	storage_key, storage_bucket, original_filename, uploaded_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallpaper(r rowScanner) (*wallpaper.Wallpaper, error) {
	var (
		w             wallpaper.Wallpaper
		state         string
		fileType      sql.NullString
		contentHash   sql.NullString
		processingErr sql.NullString
		mimeType      sql.NullString
		storageKey    sql.NullString
		storageBucket sql.NullString
		origFilename  sql.NullString
		fileSizeBytes sql.NullInt64
		width, height sql.NullInt64
		aspectRatio   sql.NullFloat64
	)

	err := r.Scan(
		&w.ID, &w.UserID, &contentHash, &state, &w.StateChangedAt, &w.UploadAttempts, &processingErr,
		&fileType, &mimeType, &fileSizeBytes, &width, &height, &aspectRatio,
		&storageKey, &storageBucket, &origFilename, &w.UploadedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.UploadState = wallpaper.UploadState(state)
	if contentHash.Valid {
		w.ContentHash = &contentHash.String
	}
	if processingErr.Valid {
		w.ProcessingError = &processingErr.String
	}
	if fileType.Valid {
		ft := wallpaper.FileType(fileType.String)
		w.FileType = &ft
	}
	if mimeType.Valid {
		w.MIMEType = &mimeType.String
	}
	if fileSizeBytes.Valid {
		w.FileSizeBytes = &fileSizeBytes.Int64
	}
	if width.Valid {
		v := int(width.Int64)
		w.Width = &v
	}
	if height.Valid {
		v := int(height.Int64)
		w.Height = &v
	}
	if aspectRatio.Valid {
		w.AspectRatio = &aspectRatio.Float64
	}
	if storageKey.Valid {
		w.StorageKey = &storageKey.String
	}
	if storageBucket.Valid {
		w.StorageBucket = &storageBucket.String
	}
	if origFilename.Valid {
		w.OriginalFilename = &origFilename.String
	}

	return &w, nil
}
