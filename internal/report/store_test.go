package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	j := &Job{
		ID:        "abc123",
		Status:    StatusPending,
		Mode:      ModeNL,
		Title:     "报告",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Save(j))

	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, j.Status, got.Status)
	assert.Equal(t, j.Mode, got.Mode)
	assert.Equal(t, j.Title, got.Title)
	assert.True(t, got.CreatedAt.Equal(j.CreatedAt))
}

func TestStoreGetUnknown(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsPathyIDs(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../evil", "a/b", `a\b`, "a.b"} {
		_, err := s.Get(id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Save(&Job{
			ID:        id,
			Status:    StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	jobs, err := s.List()
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "new", jobs[0].ID)
	assert.Equal(t, "old", jobs[2].ID)
}

func TestStoreDelete(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(&Job{ID: "gone", Status: StatusPending}))
	require.NoError(t, s.Delete("gone"))

	_, err = s.Get("gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("gone"), ErrNotFound)
}
