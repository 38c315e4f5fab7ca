package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

// Captions fetches the official caption track through the metadata client.
// Fastest strategy, needs direct access to the source host.
type Captions struct {
	Client *tube.Client
}

func (c *Captions) Name() string { return SourceCaptions }

func (c *Captions) Extract(ctx context.Context, videoID string) (*Result, error) {
	transcript, lang, err := c.Client.Captions(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("fetching caption track: %w", err)
	}

	b := strings.Builder{}
	for _, entry := range transcript.Entries {
		txt := strings.TrimSpace(entry.Text)
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(txt)
	}

	return &Result{
		Text:     b.String(),
		Source:   SourceCaptions,
		Language: lang,
	}, nil
}
