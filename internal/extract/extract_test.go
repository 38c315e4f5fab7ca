package extract

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

type fakeStrategy struct {
	name  string
	text  string
	err   error
	calls int

	sawDeadline bool
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(ctx context.Context, videoID string) (*Result, error) {
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Text: f.text, Source: f.name}, nil
}

func testEngine(reachable bool, captions, sidecar, summarizer, whisper Strategy) *Engine {
	e := NewEngine(captions, sidecar, summarizer, whisper)
	e.Reachable = func(context.Context) bool { return reachable }
	return e
}

func TestEngineOrderReachable(t *testing.T) {
	captions := &fakeStrategy{name: SourceCaptions, err: errors.New("no captions")}
	sidecar := &fakeStrategy{name: SourceSidecar, text: "from sidecar"}
	summarizer := &fakeStrategy{name: SourceSummary, text: "never used"}
	whisper := &fakeStrategy{name: SourceWhisper, text: "never used"}

	e := testEngine(true, captions, sidecar, summarizer, whisper)
	res := e.Extract(context.Background(), "dQw4w9WgXcQ")
	if res == nil || res.Text != "from sidecar" {
		t.Fatalf("Extract() = %+v, want sidecar result", res)
	}

	if captions.calls != 1 || sidecar.calls != 1 {
		t.Errorf("calls = captions:%d sidecar:%d, want 1 and 1", captions.calls, sidecar.calls)
	}
	if summarizer.calls != 0 {
		t.Error("summarizer ran while the source was reachable")
	}
	if whisper.calls != 0 {
		t.Error("whisper ran after an earlier strategy succeeded")
	}

	if got := e.Stats.Failures(SourceCaptions); got != 1 {
		t.Errorf("captions failures = %d, want 1", got)
	}
	if got := e.Stats.Successes(SourceSidecar); got != 1 {
		t.Errorf("sidecar successes = %d, want 1", got)
	}
}

func TestEngineOrderUnreachable(t *testing.T) {
	captions := &fakeStrategy{name: SourceCaptions, text: "never used"}
	sidecar := &fakeStrategy{name: SourceSidecar, text: "never used"}
	summarizer := &fakeStrategy{name: SourceSummary, err: errors.New("service down")}
	whisper := &fakeStrategy{name: SourceWhisper, text: "from whisper"}

	e := testEngine(false, captions, sidecar, summarizer, whisper)
	res := e.Extract(context.Background(), "dQw4w9WgXcQ")
	if res == nil || res.Source != SourceWhisper {
		t.Fatalf("Extract() = %+v, want whisper result", res)
	}

	if captions.calls != 0 || sidecar.calls != 0 {
		t.Error("direct strategies ran while the source was unreachable")
	}
	if summarizer.calls != 1 || whisper.calls != 1 {
		t.Errorf("calls = summarizer:%d whisper:%d, want 1 and 1", summarizer.calls, whisper.calls)
	}
}

func TestEngineSkipsNilSummarizer(t *testing.T) {
	whisper := &fakeStrategy{name: SourceWhisper, text: "from whisper"}

	e := testEngine(false, &fakeStrategy{name: SourceCaptions}, &fakeStrategy{name: SourceSidecar}, nil, whisper)
	if got := len(e.Remote); got != 1 {
		t.Fatalf("len(Remote) = %d, want 1 with nil summarizer", got)
	}

	res := e.Extract(context.Background(), "dQw4w9WgXcQ")
	if res == nil || res.Source != SourceWhisper {
		t.Fatalf("Extract() = %+v, want whisper result", res)
	}
}

func TestEngineEmptyTextCountsAsFailure(t *testing.T) {
	captions := &fakeStrategy{name: SourceCaptions, text: "   "}
	sidecar := &fakeStrategy{name: SourceSidecar, text: "actual text"}

	e := testEngine(true, captions, sidecar, nil, &fakeStrategy{name: SourceWhisper})
	res := e.Extract(context.Background(), "dQw4w9WgXcQ")
	if res == nil || res.Source != SourceSidecar {
		t.Fatalf("Extract() = %+v, want sidecar result", res)
	}
	if got := e.Stats.Failures(SourceCaptions); got != 1 {
		t.Errorf("captions failures = %d, want 1", got)
	}
}

func TestEngineExhaustionYieldsNil(t *testing.T) {
	boom := errors.New("boom")
	captions := &fakeStrategy{name: SourceCaptions, err: boom}
	sidecar := &fakeStrategy{name: SourceSidecar, err: boom}
	whisper := &fakeStrategy{name: SourceWhisper, err: boom}

	e := testEngine(true, captions, sidecar, nil, whisper)
	if res := e.Extract(context.Background(), "dQw4w9WgXcQ"); res != nil {
		t.Fatalf("Extract() = %+v, want nil on exhaustion", res)
	}

	for _, s := range []*fakeStrategy{captions, sidecar, whisper} {
		if s.calls != 1 {
			t.Errorf("%s ran %d times, want 1", s.name, s.calls)
		}
		if got := e.Stats.Failures(s.name); got != 1 {
			t.Errorf("%s failures = %d, want 1", s.name, got)
		}
	}
}

func TestEngineAppliesTimeout(t *testing.T) {
	captions := &fakeStrategy{name: SourceCaptions, text: "hi"}
	e := testEngine(true, captions, &fakeStrategy{name: SourceSidecar}, nil, &fakeStrategy{name: SourceWhisper})
	e.Timeouts = map[string]time.Duration{SourceCaptions: time.Second}

	e.Extract(context.Background(), "dQw4w9WgXcQ")
	if !captions.sawDeadline {
		t.Error("strategy context had no deadline")
	}
}

func TestStatsReport(t *testing.T) {
	s := NewStats()
	s.Success(SourceCaptions)
	s.Success(SourceCaptions)
	s.Failure(SourceWhisper)
	s.Exhausted()

	report := s.Report()
	for _, want := range []string{"captions: 2 ok, 0 failed", "whisper: 0 ok, 1 failed", "exhausted: 1", "success rate: 66.7%"} {
		if !strings.Contains(report, want) {
			t.Errorf("Report() missing %q:\n%s", want, report)
		}
	}
}

func TestChain(t *testing.T) {
	a := &fakeStrategy{name: "a"}
	b := &fakeStrategy{name: "b"}
	got := chain(a, nil, b)
	want := []Strategy{a, b}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chain() = %v, want %v", got, want)
	}
}
