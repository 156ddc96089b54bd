package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-client/internal/models"
)

func openTestDB(t *testing.T, schema []string) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"), schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func exerciseKV(t *testing.T, kv KV) {
	_, ok, err := kv.Get("telemetry_client_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("telemetry_client_id", "first"))
	require.NoError(t, kv.Set("telemetry_client_id", "second"))
	require.NoError(t, kv.Set("telemetry_client_token", "secret"))

	v, ok, err := kv.Get("telemetry_client_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	require.NoError(t, kv.Delete("telemetry_client_id"))
	require.NoError(t, kv.Delete("never-set"))
	_, ok, _ = kv.Get("telemetry_client_id")
	assert.False(t, ok)

	require.NoError(t, kv.SetMany(map[string]string{
		"telemetry_client_id":    "pair-id",
		"telemetry_client_token": "pair-token",
	}))
	v, _, _ = kv.Get("telemetry_client_id")
	assert.Equal(t, "pair-id", v)
	v, _, _ = kv.Get("telemetry_client_token")
	assert.Equal(t, "pair-token", v)

	require.NoError(t, kv.Clear())
	_, ok, _ = kv.Get("telemetry_client_token")
	assert.False(t, ok)
}

func TestKVStore(t *testing.T) {
	exerciseKV(t, NewKVStore(openTestDB(t, ClientSchema)))
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestKVStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")

	db, err := Open(path, ClientSchema)
	require.NoError(t, err)
	require.NoError(t, NewKVStore(db).Set("telemetry_client_fingerprint", "abc"))
	require.NoError(t, db.Close())

	db, err = Open(path, ClientSchema)
	require.NoError(t, err)
	defer db.Close()

	v, ok, err := NewKVStore(db).Get("telemetry_client_fingerprint")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestClientStore(t *testing.T) {
	db := openTestDB(t, CollectorSchema)
	clients := NewClientStore(db)

	missing, err := clients.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = clients.Create("c1", "hash")
	require.NoError(t, err)

	got, err := clients.GetByID("c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash", got.TokenHash)
	assert.True(t, got.LastCheckinAt.IsZero())

	require.NoError(t, clients.RecordCheckin(&models.Checkin{ClientID: "c1", FP: "fp1", FPV: 1, Version: "0.1.0"}))
	require.NoError(t, clients.RecordCheckin(&models.Checkin{ClientID: "c1", FP: "fp2", FPV: 1, Version: "0.1.0"}))

	got, err = clients.GetByID("c1")
	require.NoError(t, err)
	assert.Equal(t, "fp2", got.LastFP)
	assert.False(t, got.LastCheckinAt.IsZero())

	checkins, err := clients.Checkins("c1")
	require.NoError(t, err)
	require.Len(t, checkins, 2)
	assert.Equal(t, "fp2", checkins[0].FP)

	n, err := clients.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCounterStore(t *testing.T) {
	db := openTestDB(t, CollectorSchema)
	_, err := NewClientStore(db).Create("c1", "hash")
	require.NoError(t, err)
	_, err = NewClientStore(db).Create("c2", "hash")
	require.NoError(t, err)

	counters := NewCounterStore(db)
	url := "https://example.org/post"

	rec, err := counters.Get(url)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, counters.RecordView("c1", url))
	require.NoError(t, counters.RecordView("c1", url))

	added, err := counters.RecordLike("c1", url)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = counters.RecordLike("c1", url)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = counters.RecordLike("c2", url)
	require.NoError(t, err)
	assert.True(t, added)

	rec, err = counters.Get(url)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.CounterRecord{URL: url, ViewCount: 2, LikeCount: 2}, *rec)

	many, err := counters.GetMany([]string{"https://example.org/other", url})
	require.NoError(t, err)
	assert.Equal(t, []models.CounterRecord{
		{URL: "https://example.org/other"},
		{URL: url, ViewCount: 2, LikeCount: 2},
	}, many)

	empty, err := counters.GetMany(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
