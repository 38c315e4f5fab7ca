package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

// Languages hinted to the summarization service, tried in order. "auto" last
// so an explicit hit wins over whatever the service guesses.
var summaryLanguages = []string{"zh-CN", "en-US", "auto"}

// Summarizer asks a third party summarization service for the subtitle
// segments of a video. Works without direct access to the source host, which
// is the whole reason it exists in the chain.
type Summarizer struct {
	Endpoint string
	Token    string
	Client   *http.Client // nil means http.DefaultClient.
}

func (s *Summarizer) Name() string { return SourceSummary }

type summaryRequest struct {
	URL           string `json:"url"`
	Language      string `json:"language,omitempty"`
	IncludeDetail bool   `json:"includeDetail"`
}

type summaryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detail  struct {
		Title          string `json:"title"`
		SubtitlesArray []struct {
			Index int    `json:"index"`
			Text  string `json:"text"`
		} `json:"subtitlesArray"`
	} `json:"detail"`
}

func (s *Summarizer) Extract(ctx context.Context, videoID string) (*Result, error) {
	var lastErr error
	for _, lang := range summaryLanguages {
		text, err := s.request(ctx, videoID, lang)
		if err != nil {
			lastErr = err
			continue
		}

		// Anything this short is the service echoing a title back, not a
		// transcript.
		if len(text) > 10 {
			return &Result{
				Text:     text,
				Source:   SourceSummary,
				Language: lang,
			}, nil
		}
		lastErr = fmt.Errorf("summary service returned %d chars for language %q", len(text), lang)
	}
	return nil, lastErr
}

func (s *Summarizer) request(ctx context.Context, videoID, lang string) (string, error) {
	payload, err := json.Marshal(summaryRequest{
		URL:           fmt.Sprintf(tube.WatchURLFormat, videoID),
		Language:      lang,
		IncludeDetail: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summary request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading summary response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summary service status code %d: %q", res.StatusCode, string(body))
	}

	result := summaryResponse{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshalling summary response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("summary service rejected the request: %q", result.Message)
	}

	b := strings.Builder{}
	for _, seg := range result.Detail.SubtitlesArray {
		txt := strings.TrimSpace(seg.Text)
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}
