// Package archive persists one plain text artifact per video: a fixed
// metadata block followed by the transcript, with a JSON index mapping video
// ids to filenames. Artifacts render and parse losslessly so later passes can
// re-read what an earlier pass wrote.
package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/score"
	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

var delimiter = strings.Repeat("=", 80)

// NoTranscriptMarker starts the body of artifacts without a transcript.
const NoTranscriptMarker = "NO TRANSCRIPT AVAILABLE"

// CategoryOther is assigned to uploads archived outside the candidate
// criteria, the catch-all pass over everything the filter phase skipped.
const CategoryOther = "其他"

type Artifact struct {
	Title         string
	URL           string
	Published     string // "2006-01-02" or "Unknown".
	Views         int
	Duration      int // Seconds.
	Score         float64
	Rank          string
	HasTranscript bool
	Category      string
	Source        string
	Transcript    string
}

// VideoID extracts the id from the artifact's watch URL.
func (a *Artifact) VideoID() string {
	return tube.VideoID(a.URL)
}

// Filename is [RANK]_DATE_TITLE.txt with filesystem-hostile characters
// removed and the title capped at 200 characters.
func (a *Artifact) Filename() string {
	return fmt.Sprintf("[%s]_%s_%s.txt", a.Rank, a.Published, SanitizeTitle(a.Title))
}

func SanitizeTitle(title string) string {
	b := strings.Builder{}
	b.Grow(len(title))
	for _, ch := range title {
		switch ch {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		}
		b.WriteRune(ch)
	}

	out := b.String()
	// Cap on runes, a byte cap could split a multibyte title mid-character.
	if runes := []rune(out); len(runes) > 200 {
		out = string(runes[:200])
	}
	return strings.TrimSpace(out)
}

// Render produces the artifact file content. Render and Parse round-trip:
// Parse(Render(a)) gives back a and Render(Parse(content)) gives back content
// for content this package wrote.
func (a *Artifact) Render() string {
	source := a.Source
	if source == "" {
		source = "youtube"
	}
	status := "NOT AVAILABLE"
	if a.HasTranscript {
		status = "Available"
	}

	b := strings.Builder{}
	fmt.Fprintf(&b, "%s\nMETADATA\n%s\n", delimiter, delimiter)
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "URL: %s\n", a.URL)
	fmt.Fprintf(&b, "Published: %s\n", a.Published)
	fmt.Fprintf(&b, "View Count: %s\n", groupDigits(a.Views))
	fmt.Fprintf(&b, "Duration: %d seconds\n", a.Duration)
	fmt.Fprintf(&b, "Score: %s/100\n", strconv.FormatFloat(a.Score, 'f', -1, 64))
	fmt.Fprintf(&b, "Rank: %s (%s)\n", a.Rank, score.RankDescription(a.Rank))
	fmt.Fprintf(&b, "Transcript: %s\n", status)
	fmt.Fprintf(&b, "Category: %s\n", a.Category)
	fmt.Fprintf(&b, "Source: %s\n", source)
	fmt.Fprintf(&b, "\n%s\nTRANSCRIPT\n%s\n\n", delimiter, delimiter)

	if a.HasTranscript {
		b.WriteString(a.Transcript)
	} else {
		b.WriteString(NoTranscriptMarker + "\n\n")
		b.WriteString("This video does not have captions or subtitles available on YouTube.\n")
		b.WriteString("To obtain the transcript, you would need to:\n")
		b.WriteString("1. Use a speech-to-text service (e.g., OpenAI Whisper) on the downloaded audio\n")
		b.WriteString("2. Manually transcribe the content\n")
		fmt.Fprintf(&b, "\nVideo URL: %s\n", a.URL)
	}

	return b.String()
}

// Parse reads an artifact file back into its fields.
func Parse(content string) (*Artifact, error) {
	head, body, found := strings.Cut(
		content,
		delimiter+"\nTRANSCRIPT\n"+delimiter+"\n\n",
	)
	if !found {
		return nil, fmt.Errorf("content has no transcript section")
	}

	a := &Artifact{}
	for _, line := range strings.Split(head, "\n") {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			key, value, ok = strings.Cut(line, ":")
			if !ok {
				continue
			}
		}
		value = strings.TrimSpace(value)

		switch key {
		case "Title":
			a.Title = value
		case "URL":
			a.URL = value
		case "Published":
			a.Published = value
		case "View Count":
			n, err := strconv.Atoi(strings.ReplaceAll(value, ",", ""))
			if err != nil {
				return nil, fmt.Errorf("parsing view count %q: %w", value, err)
			}
			a.Views = n
		case "Duration":
			n, err := strconv.Atoi(strings.TrimSuffix(value, " seconds"))
			if err != nil {
				return nil, fmt.Errorf("parsing duration %q: %w", value, err)
			}
			a.Duration = n
		case "Score":
			f, err := strconv.ParseFloat(strings.TrimSuffix(value, "/100"), 64)
			if err != nil {
				return nil, fmt.Errorf("parsing score %q: %w", value, err)
			}
			a.Score = f
		case "Rank":
			if value != "" {
				a.Rank = value[:1]
			}
		case "Transcript":
			a.HasTranscript = value == "Available"
		case "Category":
			a.Category = value
		case "Source":
			a.Source = value
		}
	}

	if a.HasTranscript {
		a.Transcript = body
	} else if !strings.HasPrefix(body, NoTranscriptMarker) {
		// The metadata says no transcript but the body has one, trust the
		// body: this is the state the anti-regression rule protects.
		a.HasTranscript = true
		a.Transcript = body
	}

	return a, nil
}

func groupDigits(n int) string {
	digits := strconv.Itoa(n)
	if n < 0 {
		digits = digits[1:]
	}

	b := strings.Builder{}
	if n < 0 {
		b.WriteByte('-')
	}
	for i, ch := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
