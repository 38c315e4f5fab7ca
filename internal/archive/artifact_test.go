package archive

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		Title:         "AIPCon Keynote: Building with AIP",
		URL:           "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Published:     "2024-08-15",
		Views:         123456,
		Duration:      1845,
		Score:         88.5,
		Rank:          "S",
		HasTranscript: true,
		Category:      "产品介绍",
		Source:        "captions",
		Transcript:    "welcome everyone to the keynote\nlet's get started",
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	a := sampleArtifact()

	rendered := a.Render()
	parsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	// Render of the parse must reproduce the file byte for byte.
	assert.Equal(t, rendered, parsed.Render())
}

func TestArtifactRoundTripNoTranscript(t *testing.T) {
	a := sampleArtifact()
	a.HasTranscript = false
	a.Transcript = ""
	a.Source = ""

	rendered := a.Render()
	assert.Contains(t, rendered, NoTranscriptMarker)
	assert.Contains(t, rendered, "Transcript: NOT AVAILABLE")
	assert.Contains(t, rendered, "Source: youtube")

	parsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.False(t, parsed.HasTranscript)
	assert.Empty(t, parsed.Transcript)
	assert.Equal(t, rendered, parsed.Render())
}

func TestParseTrustsBodyOverHeader(t *testing.T) {
	a := sampleArtifact()
	rendered := a.Render()
	// A header claiming no transcript above a real transcript body.
	rendered = strings.Replace(rendered, "Transcript: Available", "Transcript: NOT AVAILABLE", 1)

	parsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.True(t, parsed.HasTranscript)
	assert.Equal(t, a.Transcript, parsed.Transcript)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not an artifact")
	assert.Error(t, err)
}

func TestVideoIDFromURL(t *testing.T) {
	a := sampleArtifact()
	assert.Equal(t, "dQw4w9WgXcQ", a.VideoID())

	a.URL = "https://example.com"
	assert.Empty(t, a.VideoID())
}

func TestFilename(t *testing.T) {
	a := sampleArtifact()
	a.Title = `What is AIP? A "Demo" <of> the /Platform\`
	assert.Equal(t, `[S]_2024-08-15_What is AIP A Demo of the Platform.txt`, a.Filename())
}

func TestSanitizeTitleLength(t *testing.T) {
	long := strings.Repeat("a", 300)
	assert.Len(t, SanitizeTitle(long), 200)

	// The cap counts characters, not bytes.
	wide := strings.Repeat("报", 300)
	got := SanitizeTitle(wide)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 200, utf8.RuneCountInString(got))
}

func TestGroupDigits(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{n: 0, want: "0"},
		{n: 999, want: "999"},
		{n: 1000, want: "1,000"},
		{n: 123456, want: "123,456"},
		{n: 1234567, want: "1,234,567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, groupDigits(tt.n), "groupDigits(%d)", tt.n)
	}
}
