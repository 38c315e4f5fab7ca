package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/opslilyhuang/videoanalysis/internal/analyzer"
	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/extract"
	"github.com/opslilyhuang/videoanalysis/internal/llm"
	"github.com/opslilyhuang/videoanalysis/internal/quota"
	"github.com/opslilyhuang/videoanalysis/internal/report"
	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

var (
	ytKey        = os.Getenv("YT_KEY")
	llmKey       = os.Getenv("DEEPSEEK_API_KEY")
	llmEndpoint  = os.Getenv("DEEPSEEK_ENDPOINT")
	summaryToken = os.Getenv("SUMMARY_API_TOKEN")
	summaryURL   = os.Getenv("SUMMARY_API_ENDPOINT")

	dataDir = envOr("DATA_DIR", "data")

	binYtDlp  = envOr("YTDLP_BIN", "yt-dlp")
	binFfmpeg = envOr("FFMPEG_BIN", "ffmpeg")

	binWhisper   = envOr("WHISPER_BIN", "../whisper.cpp/main")
	whisperModel = envOr("WHISPER_MODEL", "../whisper.cpp/models/ggml-base.en.bin")
	whisperKey   = os.Getenv("WHISPER_API_KEY")
	whisperURL   = envOr("WHISPER_API_ENDPOINT", "https://api.openai.com/v1/audio/transcriptions")
)

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: videoanalysis <command> [args]

  filter <channel-id> [limit]   list uploads and keep candidates worth processing
  process [limit]               acquire, score, and archive candidate transcripts
  process-others <channel-id> [limit]
                                archive the remaining uploads under the 其他 category
  retry-failed                  re-run acquisition for the failed list
  whisper-missing               speech-to-text pass over transcript-less artifacts
  reindex                       rebuild the transcript index from the artifacts
  report-filter <filters.json>  generate a report from a filter definition
  report-nl <query>             generate a report from a natural language request
  report-get <id>               print a report job
  report-list                   list report jobs, newest first
  report-delete <id>            delete a report job
  chat <question>               answer a question over the archived transcripts
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()

	transcripts, err := archive.NewStore(filepath.Join(dataDir, "transcripts"))
	if err != nil {
		log.Fatalf("[ERROR]: opening archive: %v", err)
	}

	yt := &tube.Client{
		Key:     ytKey,
		Limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}

	switch os.Args[1] {
	case "filter":
		if len(os.Args) < 3 {
			usage()
		}
		requireEnv("YT_KEY", ytKey)
		a := newAnalyzer(yt, transcripts)
		if _, err := a.Filter(ctx, os.Args[2], argLimit(3)); err != nil {
			log.Fatalf("[ERROR]: filtering channel: %v", err)
		}
		log.Println("[INFO]: finished filtering")

	case "process":
		requireEnv("YT_KEY", ytKey)
		a := newAnalyzer(yt, transcripts)
		if err := a.Process(ctx, argLimit(2)); err != nil {
			log.Fatalf("[ERROR]: processing candidates: %v", err)
		}
		log.Println("[INFO]: finished processing")

	case "process-others":
		if len(os.Args) < 3 {
			usage()
		}
		requireEnv("YT_KEY", ytKey)
		a := newAnalyzer(yt, transcripts)
		if err := a.ProcessOthers(ctx, os.Args[2], argLimit(3)); err != nil {
			log.Fatalf("[ERROR]: processing remaining uploads: %v", err)
		}
		log.Println("[INFO]: finished processing remaining uploads")

	case "retry-failed":
		requireEnv("YT_KEY", ytKey)
		a := newAnalyzer(yt, transcripts)
		if err := a.RetryFailed(ctx); err != nil {
			log.Fatalf("[ERROR]: retrying failures: %v", err)
		}
		log.Println("[INFO]: finished retrying")

	case "whisper-missing":
		a := newAnalyzer(yt, transcripts)
		if err := a.WhisperMissing(ctx); err != nil {
			log.Fatalf("[ERROR]: whisper pass: %v", err)
		}
		log.Println("[INFO]: finished whisper pass")

	case "reindex":
		index, err := transcripts.RebuildIndex()
		if err != nil {
			log.Fatalf("[ERROR]: rebuilding index: %v", err)
		}
		log.Printf("[INFO]: indexed %d videos", len(index))

	case "report-filter":
		if len(os.Args) < 3 {
			usage()
		}
		content, err := os.ReadFile(os.Args[2])
		if err != nil {
			log.Fatalf("[ERROR]: reading filters: %v", err)
		}
		filters := &report.Filters{}
		if err := json.Unmarshal(content, filters); err != nil {
			log.Fatalf("[ERROR]: parsing filters: %v", err)
		}
		submitAndWait(newGenerator(transcripts), &report.Request{
			Mode:    report.ModeFilter,
			Filters: filters,
		})

	case "report-nl":
		if len(os.Args) < 3 {
			usage()
		}
		submitAndWait(newGenerator(transcripts), &report.Request{
			Mode:  report.ModeNL,
			Query: os.Args[2],
		})

	case "report-get":
		if len(os.Args) < 3 {
			usage()
		}
		job, err := newReportStore().Get(os.Args[2])
		if err != nil {
			log.Fatalf("[ERROR]: getting report: %v", err)
		}
		printJSON(job)

	case "report-list":
		jobs, err := newReportStore().List()
		if err != nil {
			log.Fatalf("[ERROR]: listing reports: %v", err)
		}
		printJSON(jobs)

	case "report-delete":
		if len(os.Args) < 3 {
			usage()
		}
		if err := newReportStore().Delete(os.Args[2]); err != nil {
			log.Fatalf("[ERROR]: deleting report: %v", err)
		}
		log.Println("[INFO]: deleted")

	case "chat":
		if len(os.Args) < 3 {
			usage()
		}
		answer, err := newGenerator(transcripts).Answer(ctx, &report.ChatRequest{
			Query: os.Args[2],
		})
		if err != nil {
			log.Fatalf("[ERROR]: answering: %v", err)
		}
		fmt.Println(answer.Answer)
		for _, src := range answer.Sources {
			fmt.Printf("  - %s (%s)\n", src.Title, src.VideoID)
		}

	default:
		usage()
	}
}

func newAnalyzer(yt *tube.Client, transcripts *archive.Store) *analyzer.Analyzer {
	scratch := filepath.Join(dataDir, "tmp")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		log.Fatalf("[ERROR]: creating scratch dir: %v", err)
	}

	whisper := &extract.Whisper{
		BinYtDlp:   binYtDlp,
		BinFfmpeg:  binFfmpeg,
		BinWhisper: binWhisper,
		ModelPath:  whisperModel,
		Threads:    "1",
		Processors: strconv.Itoa(max(runtime.NumCPU()-1, 1)),
		APIKey:     whisperKey,
		Endpoint:   whisperURL,
		Model:      "whisper-1",
		Dir:        scratch,
	}

	var summarizer extract.Strategy
	if summaryToken != "" && summaryURL != "" {
		summarizer = &extract.Summarizer{
			Endpoint: summaryURL,
			Token:    summaryToken,
			Client:   &http.Client{Timeout: extract.DefaultTimeouts[extract.SourceSummary]},
		}
	}

	engine := extract.NewEngine(
		&extract.Captions{Client: yt},
		&extract.Sidecar{Bin: binYtDlp, Dir: scratch},
		summarizer,
		whisper,
	)

	return &analyzer.Analyzer{
		Tube:    yt,
		Engine:  engine,
		Archive: transcripts,
		Whisper: whisper,
		Quota:   quota.NewGate(),
		// A local run is its own authenticated operator.
		Identity:      "local",
		Authenticated: true,
		Status:        analyzer.NewStatusWriter(dataDir, ""),
		DataDir:       dataDir,
		Workers:       4,
	}
}

func newReportStore() *report.Store {
	jobs, err := report.NewStore(filepath.Join(dataDir, "reports"))
	if err != nil {
		log.Fatalf("[ERROR]: opening report store: %v", err)
	}
	return jobs
}

func newGenerator(transcripts *archive.Store) *report.Generator {
	requireEnv("DEEPSEEK_API_KEY", llmKey)
	return &report.Generator{
		LLM:     &llm.Client{Endpoint: llmEndpoint, Key: llmKey},
		Archive: transcripts,
		Jobs:    newReportStore(),
	}
}

// submitAndWait submits the report and polls it to completion, which is what
// a frontend does against the job store.
func submitAndWait(g *report.Generator, req *report.Request) {
	job, err := g.Submit(req)
	if err != nil {
		log.Fatalf("[ERROR]: submitting report: %v", err)
	}
	log.Printf("[INFO]: report %s submitted", job.ID)

	for {
		time.Sleep(2 * time.Second)
		job, err = g.Jobs.Get(job.ID)
		if err != nil {
			log.Fatalf("[ERROR]: polling report: %v", err)
		}
		switch job.Status {
		case report.StatusCompleted:
			fmt.Println(job.Report)
			return
		case report.StatusFailed:
			log.Fatalf("[ERROR]: report failed: %s", job.Error)
		}
	}
}

func printJSON(v any) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("[ERROR]: marshalling output: %v", err)
	}
	fmt.Println(string(content))
}

func argLimit(pos int) int {
	if len(os.Args) <= pos {
		return 0
	}
	n, err := strconv.Atoi(os.Args[pos])
	if err != nil {
		log.Fatalf("[ERROR]: limit %q is not a number", os.Args[pos])
	}
	return n
}

func requireEnv(name, value string) {
	if value == "" {
		panic(name + " environment variable must be set")
	}
}
