package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/cfdbot/internal/protocol"
)

type options struct {
	baseURL        string
	turns          int
	imageRuns      int
	imagePath      string
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type wsEnvelope struct {
	Type      string `json:"type"`
	TurnID    string `json:"turn_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Text      string `json:"text,omitempty"`
	TextDelta string `json:"text_delta,omitempty"`
}

type turnTiming struct {
	FirstDelta time.Duration
	TurnEnd    time.Duration
	Reason     string
}

var defaultPrompts = []string{
	"Reply in three words: what is turbulence?",
	"Reply in three words: define Reynolds number.",
	"/info",
	"Reply in three words: why use a finer mesh?",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfchat", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "cfdbot base URL")
	fs.IntVar(&cfg.turns, "turns", 10, "number of chat turns to replay over the websocket")
	fs.IntVar(&cfg.imageRuns, "image-runs", 5, "number of /analyze-image uploads (0 disables)")
	fs.StringVar(&cfg.imagePath, "image", "", "image to upload (defaults to a synthetic gradient)")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 60000, "timeout waiting for assistant_turn_end per turn in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "prompts separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns < 0 {
		return options{}, fmt.Errorf("turns must be >= 0")
	}
	if cfg.imageRuns < 0 {
		return options{}, fmt.Errorf("image-runs must be >= 0")
	}
	if cfg.turns == 0 && cfg.imageRuns == 0 {
		return options{}, fmt.Errorf("nothing to do: turns and image-runs are both 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultPrompts...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			t := strings.TrimSpace(part)
			if t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty prompts")
		}
	}
	return cfg, nil
}

func run(cfg options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	if cfg.turns > 0 {
		timings, err := replayChat(ctx, cfg, out)
		if err != nil {
			return err
		}
		var first, end []time.Duration
		for _, t := range timings {
			if t.FirstDelta > 0 {
				first = append(first, t.FirstDelta)
			}
			end = append(end, t.TurnEnd)
		}
		printStage(out, "chat_first_delta", first)
		printStage(out, "chat_turn_end", end)
	}

	if cfg.imageRuns > 0 {
		data, name, err := loadImage(cfg.imagePath)
		if err != nil {
			return fmt.Errorf("load image: %w", err)
		}
		httpClient := &http.Client{Timeout: 45 * time.Second}
		var durations []time.Duration
		for i := 0; i < cfg.imageRuns; i++ {
			d, analysisID, err := uploadImage(ctx, httpClient, cfg.baseURL, name, data)
			if err != nil {
				return fmt.Errorf("upload %d: %w", i+1, err)
			}
			if cfg.verbose {
				fmt.Fprintf(out, "perfchat: upload %d/%d id=%s %s\n", i+1, cfg.imageRuns, analysisID, d.Round(time.Millisecond))
			}
			durations = append(durations, d)
		}
		printStage(out, "analyze_image", durations)
	}
	return nil
}

func replayChat(ctx context.Context, cfg options, out io.Writer) ([]turnTiming, error) {
	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	frames := make(chan wsEnvelope, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, frames, readErrCh)

	timings := make([]turnTiming, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		prompt := cfg.texts[i%len(cfg.texts)]
		requestID := uuid.NewString()
		if cfg.verbose {
			fmt.Fprintf(out, "perfchat: turn %d/%d prompt=%q\n", i+1, cfg.turns, prompt)
		}
		started := time.Now()
		if err := conn.WriteJSON(protocol.ClientPrompt{
			Type:      protocol.TypeClientPrompt,
			Prompt:    prompt,
			RequestID: requestID,
		}); err != nil {
			return nil, fmt.Errorf("turn %d send prompt: %w", i+1, err)
		}
		timing, err := awaitTurnEnd(frames, readErrCh, requestID, started, cfg.turnTimeout)
		if err != nil {
			return nil, fmt.Errorf("turn %d await assistant_turn_end: %w", i+1, err)
		}
		if cfg.verbose {
			fmt.Fprintf(out, "perfchat: turn %d reason=%s first_delta=%s end=%s\n",
				i+1, timing.Reason, timing.FirstDelta.Round(time.Millisecond), timing.TurnEnd.Round(time.Millisecond))
		}
		timings = append(timings, timing)
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}
	if cfg.verbose {
		fmt.Fprintln(out, "perfchat: replay completed")
	}
	return timings, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, frames chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			close(frames)
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		frames <- env
	}
}

func awaitTurnEnd(frames <-chan wsEnvelope, readErrCh <-chan error, requestID string, started time.Time, timeout time.Duration) (turnTiming, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var timing turnTiming
	for {
		select {
		case env, ok := <-frames:
			if !ok {
				return timing, fmt.Errorf("websocket closed")
			}
			if env.RequestID != requestID {
				continue
			}
			switch env.Type {
			case string(protocol.TypeAssistantTextDelta):
				if timing.FirstDelta == 0 {
					timing.FirstDelta = time.Since(started)
				}
			case string(protocol.TypeAssistantTurnEnd):
				timing.TurnEnd = time.Since(started)
				timing.Reason = env.Reason
				return timing, nil
			case string(protocol.TypeErrorEvent):
				return timing, fmt.Errorf("error_event code=%s detail=%s", env.Code, env.Detail)
			}
		case err := <-readErrCh:
			return timing, err
		case <-timer.C:
			return timing, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func loadImage(path string) ([]byte, string, error) {
	if strings.TrimSpace(path) == "" {
		data, err := syntheticImage(320, 240)
		return data, "synthetic.png", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(path), nil
}

// syntheticImage renders a horizontal gradient so the analysis yields points
// of every severity band.
func syntheticImage(w, h int) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / (w - 1))})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func uploadImage(ctx context.Context, client *http.Client, baseURL, name string, data []byte) (time.Duration, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return 0, "", err
	}
	if _, err := part.Write(data); err != nil {
		return 0, "", err
	}
	if err := mw.Close(); err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/analyze-image", &body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	started := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	elapsed := time.Since(started)
	if err != nil {
		return 0, "", err
	}
	if res.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}
	return elapsed, res.Header.Get("X-Analysis-ID"), nil
}

func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted)-1) + 0.5)
	return sorted[idx]
}

func printStage(out io.Writer, stage string, samples []time.Duration) {
	if len(samples) == 0 {
		fmt.Fprintf(out, "%-18s n=0\n", stage)
		return
	}
	fmt.Fprintf(out, "%-18s n=%d p50=%s p95=%s max=%s\n",
		stage,
		len(samples),
		percentile(samples, 0.50).Round(time.Millisecond),
		percentile(samples, 0.95).Round(time.Millisecond),
		percentile(samples, 1).Round(time.Millisecond),
	)
}
