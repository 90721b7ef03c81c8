package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"packwire/pkg/model"
)

// opTimeout bounds every store operation; a call that exceeds it reports a
// transient failure to the caller instead of hanging the request.
const opTimeout = 5 * time.Second

// SQLiteStore is the durable PeerStore backend. A single connection plus WAL
// serializes writes, which is what gives per-identity counter updates their
// arrival-order guarantee.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL&_pragma=synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS peers(
		uuid TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		public_key TEXT NOT NULL,
		ip_address TEXT NOT NULL UNIQUE,
		bytes_sent INTEGER NOT NULL DEFAULT 0,
		bytes_received INTEGER NOT NULL DEFAULT 0,
		last_handshake INTEGER,
		registered_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(rec model.PeerRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM peers WHERE uuid = ?`, rec.UUID).Scan(&n); err != nil {
		return fmt.Errorf("check uuid: %w", err)
	}
	if n > 0 {
		return ErrExists
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM peers WHERE ip_address = ?`, rec.IPAddress).Scan(&n); err != nil {
		return fmt.Errorf("check address: %w", err)
	}
	if n > 0 {
		return ErrAddressInUse
	}
	var hs any
	if !rec.LastHandshake.IsZero() {
		hs = rec.LastHandshake.Unix()
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO peers(uuid, username, public_key, ip_address, bytes_sent, bytes_received, last_handshake, registered_at) VALUES(?,?,?,?,?,?,?,?)`,
		rec.UUID, rec.Username, rec.PublicKey, rec.IPAddress, rec.BytesSent, rec.BytesReceived, hs, rec.RegisteredAt.Unix()); err != nil {
		return fmt.Errorf("insert peer: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(uuid string) (model.PeerRecord, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT uuid, username, public_key, ip_address, bytes_sent, bytes_received, last_handshake, registered_at FROM peers WHERE uuid = ?`, uuid)
	rec, err := scanPeer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PeerRecord{}, false, nil
	}
	if err != nil {
		return model.PeerRecord{}, false, fmt.Errorf("get peer: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) List() ([]model.PeerRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, username, public_key, ip_address, bytes_sent, bytes_received, last_handshake, registered_at FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()
	var out []model.PeerRecord
	for rows.Next() {
		rec, err := scanPeer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertTraffic(uuid string, sentDelta, recvDelta int64, handshakeAt time.Time) error {
	if sentDelta < 0 {
		sentDelta = 0
	}
	if recvDelta < 0 {
		recvDelta = 0
	}
	var hs int64
	if !handshakeAt.IsZero() {
		hs = handshakeAt.Unix()
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `UPDATE peers SET
		bytes_sent = bytes_sent + ?,
		bytes_received = bytes_received + ?,
		last_handshake = CASE WHEN ? > COALESCE(last_handshake, 0) THEN ? ELSE last_handshake END
		WHERE uuid = ?`, sentDelta, recvDelta, hs, hs, uuid)
	if err != nil {
		return fmt.Errorf("upsert traffic: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert traffic: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateIdentity(uuid, username, publicKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `UPDATE peers SET username = ?, public_key = ? WHERE uuid = ?`, username, publicKey, uuid)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Remove(uuid string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM peers WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("remove peer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove peer: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping reports readiness for health/diagnose endpoints.
func (s *SQLiteStore) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanPeer(row interface{ Scan(dest ...any) error }) (model.PeerRecord, error) {
	var rec model.PeerRecord
	var hs sql.NullInt64
	var reg int64
	if err := row.Scan(&rec.UUID, &rec.Username, &rec.PublicKey, &rec.IPAddress, &rec.BytesSent, &rec.BytesReceived, &hs, &reg); err != nil {
		return model.PeerRecord{}, err
	}
	if hs.Valid {
		rec.LastHandshake = time.Unix(hs.Int64, 0)
	}
	rec.RegisteredAt = time.Unix(reg, 0)
	return rec, nil
}
