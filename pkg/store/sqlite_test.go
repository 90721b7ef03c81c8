package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.db")
	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	t.Parallel()

	st, _ := newTestSQLite(t)
	rec := samplePeer("a", "10.8.0.2")
	if err := st.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok, err := st.Get("a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.UUID != rec.UUID || got.Username != rec.Username || got.PublicKey != rec.PublicKey || got.IPAddress != rec.IPAddress {
		t.Fatalf("record=%+v", got)
	}
	if !got.LastHandshake.IsZero() {
		t.Fatalf("fresh record has a handshake: %v", got.LastHandshake)
	}
	if got.RegisteredAt.Unix() != rec.RegisteredAt.Unix() {
		t.Fatalf("registered_at=%v", got.RegisteredAt)
	}

	if _, ok, err := st.Get("ghost"); err != nil || ok {
		t.Fatalf("missing peer must be (zero, false, nil): ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStore_DuplicateDetection(t *testing.T) {
	t.Parallel()

	st, _ := newTestSQLite(t)
	if err := st.Create(samplePeer("a", "10.8.0.2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Create(samplePeer("a", "10.8.0.9")); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate uuid: %v", err)
	}
	if err := st.Create(samplePeer("b", "10.8.0.2")); !errors.Is(err, ErrAddressInUse) {
		t.Fatalf("duplicate address: %v", err)
	}
}

func TestSQLiteStore_UpsertTraffic(t *testing.T) {
	t.Parallel()

	st, _ := newTestSQLite(t)
	if err := st.Create(samplePeer("a", "10.8.0.2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	hs := time.Unix(1_700_000_100, 0)
	if err := st.UpsertTraffic("a", 100, 200, hs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertTraffic("a", 50, 25, time.Time{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, _, _ := st.Get("a")
	if rec.BytesSent != 150 || rec.BytesReceived != 225 {
		t.Fatalf("counters=%d/%d", rec.BytesSent, rec.BytesReceived)
	}
	if rec.LastHandshake.Unix() != hs.Unix() {
		t.Fatalf("handshake=%v", rec.LastHandshake)
	}

	if err := st.UpsertTraffic("a", 0, 0, hs.Add(-time.Minute)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, _, _ = st.Get("a")
	if rec.LastHandshake.Unix() != hs.Unix() {
		t.Fatalf("handshake regressed: %v", rec.LastHandshake)
	}

	if err := st.UpsertTraffic("ghost", 1, 1, hs); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown uuid: %v", err)
	}
}

func TestSQLiteStore_UpdateIdentityAndRemove(t *testing.T) {
	t.Parallel()

	st, _ := newTestSQLite(t)
	orig := samplePeer("a", "10.8.0.2")
	if err := st.Create(orig); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.UpdateIdentity("a", "renamed", "new-key"); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, _, _ := st.Get("a")
	if rec.Username != "renamed" || rec.PublicKey != "new-key" || rec.IPAddress != orig.IPAddress {
		t.Fatalf("record=%+v", rec)
	}
	if err := st.UpdateIdentity("ghost", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown uuid: %v", err)
	}

	if err := st.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := st.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "peers.db")
	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	hs := time.Unix(1_700_000_100, 0)
	if err := st.Create(samplePeer("a", "10.8.0.2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.UpsertTraffic("a", 1234, 5678, hs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, ok, err := reopened.Get("a")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if rec.BytesSent != 1234 || rec.BytesReceived != 5678 || rec.LastHandshake.Unix() != hs.Unix() {
		t.Fatalf("record after reopen: %+v", rec)
	}
	if err := reopened.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
