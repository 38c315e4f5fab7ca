package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/llm"
	"github.com/opslilyhuang/videoanalysis/internal/stem"
)

const (
	// Scope values for ChatRequest.
	ScopeAll  = "all"
	ScopeRank = "rank"

	maxChatVideos   = 50
	maxChatContexts = 15
	maxContextChars = 4000
	maxCombinedChat = 25_000

	// ChatMaxRounds bounds how much history is replayed, a round is one
	// question plus one answer.
	ChatMaxRounds = 10
)

type ChatRequest struct {
	Query    string
	VideoIDs []string // Explicit selection wins over Scope.
	Scope    string   // "" or ScopeAll means the whole corpus.
	Rank     string   // With ScopeRank: restrict to this tier.
	History  []llm.Message
}

type ChatSource struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
}

type ChatResponse struct {
	Answer  string       `json:"answer"`
	Sources []ChatSource `json:"sources"`
}

const chatSystemPrompt = `你是视频内容的分析助手。基于提供的字幕摘录回答问题，回答要准确、简洁。若内容中无相关信息，请如实说明。支持多轮追问，可结合上下文回答。`

// Answer responds to a question over the archived transcripts: pick the
// scope, rank transcripts by stemmed hit count against the query, and hand
// the best excerpts to the model.
func (g *Generator) Answer(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("query is empty")
	}

	items, err := g.Archive.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading archive: %w", err)
	}

	scoped := g.scope(items, req)
	words := queryWords(query)

	type scored struct {
		hits int
		item *archive.Artifact
	}
	var contexts []scored
	for _, a := range withTranscripts(scoped) {
		if len(contexts) == maxChatVideos {
			break
		}
		text := stem.StemLine(strings.ToLower(a.Transcript))
		hits := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				hits++
			}
		}
		contexts = append(contexts, scored{hits: hits, item: a})
	}
	sort.SliceStable(contexts, func(i, k int) bool {
		return contexts[i].hits > contexts[k].hits
	})
	if len(contexts) > maxChatContexts {
		contexts = contexts[:maxChatContexts]
	}

	// Nothing in scope had a transcript, fall back to whatever the corpus
	// has so the model can at least say so with context.
	if len(contexts) == 0 {
		for _, a := range withTranscripts(items) {
			if len(contexts) == 10 {
				break
			}
			contexts = append(contexts, scored{item: a})
		}
	}
	if len(contexts) == 0 {
		return nil, ErrNoTranscripts
	}

	excerpts := make([]string, 0, len(contexts))
	sources := make([]ChatSource, 0, len(contexts))
	for _, c := range contexts {
		id := c.item.VideoID()
		excerpts = append(excerpts, fmt.Sprintf(
			"[视频 %s]\n%s",
			id,
			truncateRunes(c.item.Transcript, maxContextChars),
		))
		title := c.item.Title
		if title == "" {
			title = id
		}
		sources = append(sources, ChatSource{VideoID: id, Title: title})
	}
	combined := truncateRunes(strings.Join(excerpts, "\n\n---\n\n"), maxCombinedChat)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: chatSystemPrompt}}
	messages = append(messages, trimHistory(req.History)...)
	messages = append(messages, llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf(`参考以下视频字幕内容回答用户问题。若需要可结合你的知识补充，但请注明。

【字幕摘录】
%s

【用户问题】
%s
`, combined, query),
	})

	answer, err := g.LLM.Chat(ctx, messages, 2000)
	if err != nil {
		return nil, fmt.Errorf("answering question: %w", err)
	}

	return &ChatResponse{Answer: answer, Sources: sources}, nil
}

func (g *Generator) scope(items []*archive.Artifact, req *ChatRequest) []*archive.Artifact {
	if len(req.VideoIDs) > 0 {
		want := map[string]bool{}
		for _, id := range req.VideoIDs {
			want[id] = true
		}
		var out []*archive.Artifact
		for _, a := range items {
			if want[a.VideoID()] {
				out = append(out, a)
			}
		}
		return out
	}

	if req.Scope == ScopeRank && req.Rank != "" {
		var out []*archive.Artifact
		for _, a := range items {
			if a.Rank == req.Rank {
				out = append(out, a)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	return items
}

func trimHistory(history []llm.Message) []llm.Message {
	valid := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if (m.Role == llm.RoleUser || m.Role == llm.RoleAssistant) &&
			strings.TrimSpace(m.Content) != "" {
			valid = append(valid, m)
		}
	}
	if len(valid) > ChatMaxRounds*2 {
		valid = valid[len(valid)-ChatMaxRounds*2:]
	}
	return valid
}
