package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

// Sidecar downloads the subtitle file next to the video with yt-dlp, without
// downloading the video itself. Catches auto-generated tracks the caption
// scrape sometimes misses.
type Sidecar struct {
	Bin string // yt-dlp binary.
	Dir string // Scratch directory, "" means the OS temp dir.
}

func (s *Sidecar) Name() string { return SourceSidecar }

func (s *Sidecar) Extract(ctx context.Context, videoID string) (*Result, error) {
	dir, err := os.MkdirTemp(s.Dir, "subs-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(
		ctx,
		s.Bin,
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs",
		strings.Join(tube.LanguagePriority, ","),
		"--sub-format",
		"vtt",
		"--ignore-config",
		"--no-progress",
		"--output",
		filepath.Join(dir, videoID),
		fmt.Sprintf(tube.WatchURLFormat, videoID),
	)
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout // Errors sometimes end up on stdout.
	if err := cmd.Run(); err != nil {
		return nil, execErr("yt-dlp", err, stdout.String())
	}

	path, lang, err := bestSubtitleFile(dir, videoID)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subtitle file: %w", err)
	}

	text := ParseVTT(string(content))
	if text == "" {
		return nil, fmt.Errorf("subtitle file %q parsed to nothing", filepath.Base(path))
	}

	return &Result{
		Text:     text,
		Source:   SourceSidecar,
		Language: lang,
	}, nil
}

// bestSubtitleFile picks among the downloaded <id>.<lang>.vtt files following
// the same language priority the caption strategy uses.
func bestSubtitleFile(dir, videoID string) (path, lang string, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, videoID+"*.vtt"))
	if err != nil {
		return "", "", fmt.Errorf("globbing subtitle files: %w", err)
	}
	if len(matches) == 0 {
		return "", "", errors.New("yt-dlp wrote no subtitle file")
	}

	langOf := func(p string) string {
		base := strings.TrimSuffix(filepath.Base(p), ".vtt")
		if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
			return base[idx+1:]
		}
		return ""
	}

	for _, want := range tube.LanguagePriority {
		for _, m := range matches {
			if langOf(m) == want {
				return m, want, nil
			}
		}
	}
	return matches[0], langOf(matches[0]), nil
}

// ParseVTT flattens a WebVTT file to plain text: headers, cue timings, and
// inline tags are dropped, consecutive duplicate lines (common in rolling
// auto-captions) are collapsed.
func ParseVTT(content string) string {
	var out []string
	var last string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "",
			line == "WEBVTT",
			strings.HasPrefix(line, "Kind:"),
			strings.HasPrefix(line, "Language:"),
			strings.HasPrefix(line, "NOTE"),
			strings.HasPrefix(line, "STYLE"),
			strings.Contains(line, "-->"):
			continue
		}

		line = strings.TrimSpace(stripTags(line))
		if line == "" || line == last {
			continue
		}
		out = append(out, line)
		last = line
	}
	return strings.Join(out, " ")
}

// stripTags removes <...> sequences, which WebVTT uses for styling and
// word-level timestamps.
func stripTags(line string) string {
	if !strings.ContainsRune(line, '<') {
		return line
	}

	b := strings.Builder{}
	b.Grow(len(line))
	depth := 0
	for _, ch := range line {
		switch {
		case ch == '<':
			depth++
		case ch == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func execErr(id string, err error, extra string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf(
			"%s: exit code %d, stderr %q, stdout %q: %w",
			id,
			exitErr.ExitCode(),
			string(exitErr.Stderr),
			extra,
			err,
		)
	}
	return fmt.Errorf("%s: %w", id, err)
}
