package extract

import (
	"strings"
	"testing"
)

func TestParseWhisperCSV(t *testing.T) {
	csv := `start,end,text
0,2000," Hello there."
2000,4000," General Kenobi."
4000,6000,""
`
	got, err := parseWhisperCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parseWhisperCSV() error = %v", err)
	}
	if want := "Hello there. General Kenobi."; got != want {
		t.Errorf("parseWhisperCSV() = %q, want %q", got, want)
	}
}

func TestParseWhisperCSVEmpty(t *testing.T) {
	if _, err := parseWhisperCSV(strings.NewReader("")); err == nil {
		t.Error("parseWhisperCSV() on empty input expected an error")
	}
}
