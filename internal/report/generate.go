package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/llm"
)

const (
	// MaxCandidates caps the list shown to the model in nl mode.
	MaxCandidates = 120
	// MaxSummarized caps how many transcripts go into the batched summary call.
	MaxSummarized = 25
	// MaxSynthesized caps how many videos feed the final report call.
	MaxSynthesized = 30

	maxTranscriptChars   = 4000
	maxSummaryInputChars = 3000
	maxSummaryChars      = 800
	maxTitleChars        = 80
	maxCustomPromptChars = 1000
	maxBatchChars        = 60_000
	maxMaterialChars     = 30_000

	// RunTimeout bounds a whole background generation.
	RunTimeout = 15 * time.Minute
)

// SummaryPlaceholder stands in when the model's reply is missing a numbered
// summary marker.
const SummaryPlaceholder = "（摘要解析失败，请参考标题）"

// Template is the fixed structure the synthesis call fills in.
const Template = `# 视频分析智能报告

## 一、报告概述
- 筛选范围：视频数量、分类、等级、时间跨度、播放量区间
- 报告主题与核心结论摘要（2-3 句）

## 二、筛选范围说明
- 纳入视频数量及筛选条件
- 按等级/分类分布概览

## 三、核心观点提炼
- 基于字幕内容提炼 3-5 个关键观点
- 每点简明扼要，注明主要来源视频

## 四、产品/功能分析
- 涉及 AIP、Foundry、Paragon 等产品的功能描述
- 演示场景与用例总结

## 五、客户案例洞察
- 重点客户案例的核心信息
- 业务价值与落地效果

## 六、趋势与建议
- 行业/产品趋势观察
- 对竞品分析或学习重点的建议

## 附录：参考视频列表
- 按等级/日期排序的视频标题、链接、发布时间、播放量`

// Submission errors, reported to the caller before any job exists.
var (
	ErrEmptyCorpus   = errors.New("no archived videos")
	ErrEmptyQuery    = errors.New("natural language query is empty")
	ErrNoMatches     = errors.New("no videos match the filters")
	ErrNoTranscripts = errors.New("none of the selected videos has a transcript")
)

type Request struct {
	Mode         Mode
	Filters      *Filters // Filter mode.
	Query        string   // NL mode.
	CustomPrompt string   // Optional extra instruction appended to synthesis.
}

type Generator struct {
	LLM     *llm.Client
	Archive *archive.Store
	Jobs    *Store
}

// Submit validates the request, creates a pending job, and starts generation
// in the background. Validation failures happen before the job exists, so a
// rejected submission leaves no record. Filter mode with an empty selection
// is such a rejection: the caller should loosen the filters, not poll a job
// that can only fail.
func (g *Generator) Submit(req *Request) (*Job, error) {
	items, err := g.Archive.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading archive: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCorpus
	}

	title := "智能报告"
	switch req.Mode {
	case ModeNL:
		if strings.TrimSpace(req.Query) == "" {
			return nil, ErrEmptyQuery
		}
		title = truncateRunes(strings.TrimSpace(req.Query), maxTitleChars)
	case ModeFilter:
		filters := req.Filters
		if filters == nil {
			filters = &Filters{}
		}
		selected := filters.Apply(items)
		if len(selected) == 0 {
			return nil, ErrNoMatches
		}
		if len(withTranscripts(selected)) == 0 {
			return nil, ErrNoTranscripts
		}
		title = "筛选条件报告"
	default:
		return nil, fmt.Errorf("unknown report mode %q", req.Mode)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Mode:      req.Mode,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.Jobs.Save(job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}

	go g.Run(job.ID, req)
	return job, nil
}

// Run executes generation for an existing pending job. Every failure past
// this point lands on the job record, nothing escapes to the caller: pollers
// learn the outcome from the job, and a panic in the pipeline must not take
// the process down.
func (g *Generator) Run(jobID string, req *Request) {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR]: report %s panicked: %v", jobID, r)
			g.fail(jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	job, err := g.Jobs.Get(jobID)
	if err != nil {
		log.Printf("[ERROR]: report %s vanished before processing: %v", jobID, err)
		return
	}
	if err := job.Transition(StatusProcessing); err != nil {
		log.Printf("[ERROR]: report %s: %v", jobID, err)
		return
	}
	if err := g.Jobs.Save(job); err != nil {
		log.Printf("[ERROR]: report %s: %v", jobID, err)
		return
	}

	if err := g.generate(ctx, job, req); err != nil {
		log.Printf("[WARN]: report %s failed: %v", jobID, err)
		g.fail(jobID, err)
		return
	}

	if err := job.Transition(StatusCompleted); err != nil {
		log.Printf("[ERROR]: report %s: %v", jobID, err)
		return
	}
	if err := g.Jobs.Save(job); err != nil {
		log.Printf("[ERROR]: report %s: saving completed job: %v", jobID, err)
	}
}

func (g *Generator) fail(jobID string, cause error) {
	job, err := g.Jobs.Get(jobID)
	if err != nil {
		log.Printf("[ERROR]: report %s: loading job to fail it: %v", jobID, err)
		return
	}
	if err := job.Fail(cause); err != nil {
		log.Printf("[ERROR]: report %s: %v", jobID, err)
		return
	}
	if err := g.Jobs.Save(job); err != nil {
		log.Printf("[ERROR]: report %s: saving failed job: %v", jobID, err)
	}
}

func (g *Generator) generate(ctx context.Context, job *Job, req *Request) error {
	items, err := g.Archive.LoadAll()
	if err != nil {
		return fmt.Errorf("loading archive: %w", err)
	}

	var selected []*archive.Artifact
	switch req.Mode {
	case ModeFilter:
		filters := req.Filters
		if filters == nil {
			filters = &Filters{}
		}
		selected = filters.Apply(items)
	case ModeNL:
		selected, err = g.selectByQuery(ctx, items, req.Query)
		if err != nil {
			return err
		}
	}
	if len(selected) == 0 {
		return ErrNoMatches
	}

	withTranscript := withTranscripts(selected)
	if len(withTranscript) == 0 {
		return ErrNoTranscripts
	}

	summaries, err := g.batchSummaries(ctx, withTranscript)
	if err != nil {
		return err
	}

	text, err := g.synthesize(ctx, withTranscript, summaries, req.CustomPrompt)
	if err != nil {
		return err
	}

	job.Report = text
	job.SelectedCount = len(selected)
	job.WithTranscriptCount = len(withTranscript)
	for _, a := range withTranscript {
		if len(job.VideoTitles) == 20 {
			break
		}
		job.VideoTitles = append(job.VideoTitles, a.Title)
	}
	return nil
}

// selectByQuery pre-ranks the corpus heuristically, shows the top candidates
// to the model, and keeps the ids it picks. Ids the model invents are
// dropped, zero recognized ids fails the job.
func (g *Generator) selectByQuery(ctx context.Context, items []*archive.Artifact, query string) ([]*archive.Artifact, error) {
	ranked := RankByQuery(items, query)
	if len(ranked) > MaxCandidates {
		ranked = ranked[:MaxCandidates]
	}

	list := strings.Builder{}
	for _, a := range ranked {
		fmt.Fprintf(
			&list,
			"- %s | %s | %s | Rank:%s | Views:%d | Category:%s\n",
			a.VideoID(), a.Title, a.Published, a.Rank, a.Views, a.Category,
		)
	}

	prompt := fmt.Sprintf(`你是一个视频分析助手。用户需求：%s

以下是按相关性预排序的视频列表（格式：video_id | 标题 | 日期 | 等级 | 播放量 | 分类），靠前的更相关：
%s
请根据用户需求，选出最相关的若干视频（建议 10-20 个）。按相关性从高到低排序，每行一个 video_id，不要其他说明。`, query, list.String())

	answer, err := g.LLM.ChatPreferReasoner(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, 2000)
	if err != nil {
		return nil, fmt.Errorf("selecting videos: %w", err)
	}

	byID := map[string]*archive.Artifact{}
	for _, a := range items {
		if id := a.VideoID(); id != "" {
			byID[id] = a
		}
	}

	var selected []*archive.Artifact
	seen := map[string]bool{}
	for _, id := range ExtractVideoIDs(answer) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := byID[id]; ok {
			selected = append(selected, a)
		}
	}
	if len(selected) == 0 {
		return nil, errors.New("未找到与需求匹配的视频")
	}
	return selected, nil
}

// batchSummaries condenses the transcripts with one model call: every video
// gets a numbered marker, the reply is parsed back by marker. One call
// instead of one per video keeps the synthesis input small without burning
// through the token budget.
func (g *Generator) batchSummaries(ctx context.Context, items []*archive.Artifact) (map[string]string, error) {
	if len(items) > MaxSummarized {
		items = items[:MaxSummarized]
	}

	parts := make([]string, 0, len(items))
	for i, a := range items {
		txt := truncateRunes(a.Transcript, maxSummaryInputChars)
		parts = append(parts, fmt.Sprintf("【视频%d】%s\n%s", i+1, a.Title, txt))
	}
	combined := truncateRunes(strings.Join(parts, "\n\n---\n\n"), maxBatchChars)

	prompt := fmt.Sprintf(`以下是一组视频的字幕内容。请为每个视频生成简洁的中文摘要（150-300字），突出核心观点、关键信息、产品/案例要点。

%s

请按以下格式回复，每个视频的摘要以【摘要N】开头：
【摘要1】
（视频1的摘要内容）

【摘要2】
（视频2的摘要内容）
...`, combined)

	raw, err := g.LLM.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, 6000)
	if err != nil {
		return nil, fmt.Errorf("summarizing transcripts: %w", err)
	}

	summaries := map[string]string{}
	for i, summary := range ParseSummaries(raw, len(items)) {
		summaries[items[i].VideoID()] = summary
	}
	return summaries, nil
}

// ParseSummaries splits a batched summary reply on its 【摘要N】 markers. A
// missing marker yields the placeholder instead of failing the whole batch.
func ParseSummaries(raw string, n int) []string {
	out := make([]string, n)
	for i := range out {
		marker := fmt.Sprintf("【摘要%d】", i+1)
		start := strings.Index(raw, marker)
		if start < 0 {
			out[i] = SummaryPlaceholder
			continue
		}

		rest := raw[start+len(marker):]
		if end := strings.Index(rest, "【摘要"); end >= 0 {
			rest = rest[:end]
		}

		summary := truncateRunes(strings.TrimSpace(rest), maxSummaryChars)
		if summary == "" {
			summary = SummaryPlaceholder
		}
		out[i] = summary
	}
	return out
}

func (g *Generator) synthesize(ctx context.Context, items []*archive.Artifact, summaries map[string]string, custom string) (string, error) {
	if len(items) > MaxSynthesized {
		items = items[:MaxSynthesized]
	}

	materials := make([]string, 0, len(items))
	for _, a := range items {
		summary := summaries[a.VideoID()]
		if summary == "" {
			summary = truncateRunes(a.Transcript, 500)
		}
		materials = append(materials, fmt.Sprintf(`
### [%s]
- 日期: %s | 等级: %s | 播放量: %d | 分类: %s
- URL: %s

摘要：
%s
`, a.Title, a.Published, a.Rank, a.Views, a.Category, a.URL, summary))
	}
	combined := truncateRunes(strings.Join(materials, "\n---\n"), maxMaterialChars)

	instruction := ""
	if custom = strings.TrimSpace(custom); custom != "" {
		instruction = "\n\n用户额外要求：" + truncateRunes(custom, maxCustomPromptChars)
	}

	prompt := fmt.Sprintf(`请基于以下频道视频的摘要与元信息，按照以下模版结构生成一份中文智能分析报告。
%s

报告模版结构：
%s

---
以下是选中视频的摘要与元信息（供你分析）：
%s

请直接输出完整报告，使用 Markdown 格式。`, instruction, Template, combined)

	text, err := g.LLM.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, 8000)
	if err != nil {
		return "", fmt.Errorf("synthesizing report: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func withTranscripts(items []*archive.Artifact) []*archive.Artifact {
	out := make([]*archive.Artifact, 0, len(items))
	for _, a := range items {
		if a.HasTranscript && strings.TrimSpace(a.Transcript) != "" {
			out = append(out, a)
		}
	}
	return out
}

// ExtractVideoIDs pulls 11 character video ids out of free-form model
// output: maximal runs of id characters are chunked into 11s, shorter runs
// and remainders are dropped.
func ExtractVideoIDs(s string) []string {
	var out []string
	run := strings.Builder{}

	flush := func() {
		r := run.String()
		run.Reset()
		for len(r) >= 11 {
			out = append(out, r[:11])
			r = r[11:]
		}
	}

	for _, ch := range s {
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
			ch >= '0' && ch <= '9' || ch == '_' || ch == '-' {
			run.WriteRune(ch)
			continue
		}
		flush()
	}
	flush()
	return out
}
