package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitAndLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a := sampleArtifact()
	written, err := s.Commit(a)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := s.Load(a.VideoID())
	require.NoError(t, err)
	assert.Equal(t, a, got)

	assert.Equal(t, map[string]string{a.VideoID(): a.Filename()}, s.Index())
}

func TestCommitNeverRegressesTranscript(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a := sampleArtifact()
	_, err = s.Commit(a)
	require.NoError(t, err)

	// A later pass that failed to get a transcript must not clobber the one
	// on disk.
	bare := sampleArtifact()
	bare.HasTranscript = false
	bare.Transcript = ""
	written, err := s.Commit(bare)
	require.NoError(t, err)
	assert.False(t, written, "transcript-less commit should be suppressed")

	got, err := s.Load(a.VideoID())
	require.NoError(t, err)
	assert.True(t, got.HasTranscript)
	assert.Equal(t, a.Transcript, got.Transcript)
}

func TestCommitProtectsTranscriptQuotingMarker(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	// A genuine transcript that happens to quote the marker text must still
	// count as a transcript for the anti-regression rule.
	a := sampleArtifact()
	a.Transcript = "the speaker showed a slide reading " + NoTranscriptMarker + " as a joke"
	_, err = s.Commit(a)
	require.NoError(t, err)

	bare := sampleArtifact()
	bare.HasTranscript = false
	bare.Transcript = ""
	written, err := s.Commit(bare)
	require.NoError(t, err)
	assert.False(t, written, "transcript-less commit should be suppressed")

	got, err := s.Load(a.VideoID())
	require.NoError(t, err)
	assert.True(t, got.HasTranscript)
	assert.Equal(t, a.Transcript, got.Transcript)
}

func TestCommitUpgradesToTranscript(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	bare := sampleArtifact()
	bare.HasTranscript = false
	bare.Transcript = ""
	_, err = s.Commit(bare)
	require.NoError(t, err)

	full := sampleArtifact()
	written, err := s.Commit(full)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := s.Load(full.VideoID())
	require.NoError(t, err)
	assert.True(t, got.HasTranscript)
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	a := sampleArtifact()
	_, err = s.Commit(a)
	require.NoError(t, err)

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	got, err := reopened.Load(a.VideoID())
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
}

func TestRebuildIndexPrefersTranscript(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	// Two artifacts for the same id: an older one with a transcript under a
	// different rank, and a newer one without.
	full := sampleArtifact()
	full.Rank = "A"
	require.NoError(t, os.WriteFile(filepath.Join(dir, full.Filename()), []byte(full.Render()), 0o644))

	bare := sampleArtifact()
	bare.HasTranscript = false
	bare.Transcript = ""
	require.NoError(t, os.WriteFile(filepath.Join(dir, bare.Filename()), []byte(bare.Render()), 0o644))

	index, err := s.RebuildIndex()
	require.NoError(t, err)
	assert.Equal(t, full.Filename(), index[full.VideoID()])
}

func TestRebuildIndexPrefersNewest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	older := sampleArtifact()
	older.Rank = "A"
	olderPath := filepath.Join(dir, older.Filename())
	require.NoError(t, os.WriteFile(olderPath, []byte(older.Render()), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(olderPath, past, past))

	newer := sampleArtifact()
	require.NoError(t, os.WriteFile(filepath.Join(dir, newer.Filename()), []byte(newer.Render()), 0o644))

	index, err := s.RebuildIndex()
	require.NoError(t, err)
	assert.Equal(t, newer.Filename(), index[newer.VideoID()])
}

func TestLoadUnknown(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("AAAAAAAAAAA")
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestLoadAllOrdered(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a := sampleArtifact()
	_, err = s.Commit(a)
	require.NoError(t, err)

	b := sampleArtifact()
	b.URL = "https://www.youtube.com/watch?v=AAAAAAAAAAA"
	b.Title = "Another video"
	_, err = s.Commit(b)
	require.NoError(t, err)

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Sorted by id: "AAAAAAAAAAA" < "dQw4w9WgXcQ".
	assert.Equal(t, "Another video", all[0].Title)
}
