package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

// Whisper downloads the audio with yt-dlp, resamples it to 16 KHz mono with
// ffmpeg, and transcribes it: through a hosted speech API when a key is
// configured, else with a local whisper.cpp binary. Slowest strategy, last in
// every chain.
type Whisper struct {
	BinYtDlp  string
	BinFfmpeg string

	// Local transcription.
	BinWhisper string
	ModelPath  string
	Threads    string
	Processors string

	// Hosted transcription, used when APIKey is set.
	APIKey   string
	Endpoint string
	Model    string
	Client   *http.Client

	Dir string // Scratch directory, "" means the OS temp dir.

	checkOnce sync.Once
	checkErr  error
}

func (w *Whisper) Name() string { return SourceWhisper }

func (w *Whisper) Extract(ctx context.Context, videoID string) (*Result, error) {
	if err := w.check(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(w.Dir, "whisper-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audio, err := w.downloadAudio(ctx, dir, videoID)
	if err != nil {
		return nil, err
	}

	var text string
	if w.APIKey != "" {
		text, err = w.transcribeHosted(ctx, audio)
	} else {
		text, err = w.transcribeLocal(ctx, audio)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:     text,
		Source:   SourceWhisper,
		Language: "en",
	}, nil
}

// check verifies the configured backend exists, once: there is no point
// downloading audio for every video just to fail the same way each time.
func (w *Whisper) check() error {
	w.checkOnce.Do(func() {
		if w.APIKey != "" {
			return
		}
		if _, err := os.Stat(w.ModelPath); err != nil {
			w.checkErr = fmt.Errorf("whisper model not available: %w", err)
			return
		}
		if _, err := exec.LookPath(w.BinWhisper); err != nil {
			w.checkErr = fmt.Errorf("whisper binary not available: %w", err)
		}
	})
	return w.checkErr
}

func (w *Whisper) downloadAudio(ctx context.Context, dir, videoID string) (string, error) {
	raw := filepath.Join(dir, videoID+".wav")
	cmd := exec.CommandContext(
		ctx,
		w.BinYtDlp,
		"-f",
		"bestaudio",
		"--ignore-config",
		"--no-progress",
		"--output",
		raw,
		"--extract-audio",
		"--audio-format",
		"wav",
		fmt.Sprintf(tube.WatchURLFormat, videoID),
	)
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout // Errors sometimes end up on stdout.
	if err := cmd.Run(); err != nil {
		return "", execErr("yt-dlp", err, stdout.String())
	}

	resampled := filepath.Join(dir, videoID+".16k.wav")
	cmd = exec.CommandContext(
		ctx,
		w.BinFfmpeg,
		"-i",
		raw,
		"-ar",
		"16000",
		"-ac",
		"1",
		"-c:a",
		"pcm_s16le",
		"--",
		resampled,
	)
	stdout.Reset()
	cmd.Stdout = stdout
	if err := cmd.Run(); err != nil {
		return "", execErr("ffmpeg", err, stdout.String())
	}

	return resampled, nil
}

func (w *Whisper) transcribeLocal(ctx context.Context, audio string) (string, error) {
	cmd := exec.CommandContext(
		ctx,
		w.BinWhisper,
		"-m",
		w.ModelPath,
		"-f",
		audio,
		"-ocsv",
		"-t",
		w.Threads,
		"-p",
		w.Processors,
	)
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout
	if err := cmd.Run(); err != nil {
		return "", execErr("whisper.cpp", err, stdout.String())
	}

	fh, err := os.Open(audio + ".csv")
	if err != nil {
		return "", fmt.Errorf("opening whisper output: %w", err)
	}
	defer fh.Close()

	return parseWhisperCSV(fh)
}

// parseWhisperCSV joins the text column of whisper.cpp's csv output
// (start, end, text).
func parseWhisperCSV(r io.Reader) (string, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = 3
	cr.LazyQuotes = true

	// Header row.
	if _, err := cr.Read(); err != nil {
		return "", fmt.Errorf("reading whisper csv header: %w", err)
	}

	b := strings.Builder{}
	for {
		row, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("reading whisper csv: %w", err)
		}

		txt := strings.TrimSpace(row[2])
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

func (w *Whisper) transcribeHosted(ctx context.Context, audio string) (string, error) {
	fh, err := os.Open(audio)
	if err != nil {
		return "", fmt.Errorf("opening audio for upload: %w", err)
	}
	defer fh.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filepath.Base(audio))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, fh); err != nil {
		return "", fmt.Errorf("copying audio into form: %w", err)
	}
	if err := mw.WriteField("model", w.Model); err != nil {
		return "", fmt.Errorf("writing model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.APIKey)

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription status code %d: %q", res.StatusCode, string(resBody))
	}

	result := struct {
		Text string `json:"text"`
	}{}
	if err := json.Unmarshal(resBody, &result); err != nil {
		return "", fmt.Errorf("unmarshalling transcription response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
