package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundtrip(t *testing.T) {
	s := NewStore(t.TempDir())

	created := time.Now().UTC().Truncate(time.Second)
	rec := &Record{
		ID:        "abc12345",
		Status:    StatusQueued,
		Config:    Config{Input: "movie.mp4", TargetLang: "pt"},
		CreatedAt: created,
	}
	require.NoError(t, s.Write(rec))

	got, err := s.Get("abc12345")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, "movie.mp4", got.Config.Input)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestStoreGetUnknown(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get("nope")
	require.Error(t, err)
}

func TestStoreListNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old00000", "mid00000", "new00000"} {
		created := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Write(&Record{
			ID:        id,
			Status:    StatusCompleted,
			CreatedAt: created,
			Config:    Config{Input: "movie.mp4", TargetLang: "pt"},
		}))
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new00000", list[0].ID)
	assert.Equal(t, "mid00000", list[1].ID)
	assert.Equal(t, "old00000", list[2].ID)
}

func TestStoreListEmptyRoot(t *testing.T) {
	s := NewStore(t.TempDir())
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoreZombieDetection(t *testing.T) {
	s := NewStore(t.TempDir())

	// A record claiming to run under a pid that cannot exist belongs to a
	// dead server; Get must repair it.
	require.NoError(t, s.Write(&Record{
		ID:        "zombie01",
		Status:    StatusRunning,
		PID:       1 << 27,
		CreatedAt: time.Now().UTC(),
		Config:    Config{Input: "movie.mp4", TargetLang: "pt"},
	}))

	got, err := s.Get("zombie01")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.NotEmpty(t, got.Error)
}
