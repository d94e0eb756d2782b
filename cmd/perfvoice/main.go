package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/civicvoice/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	languageCode   string
	turns          int
	simulated      bool
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionRequest struct {
	UserID       string `json:"user_id,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type            string `json:"type"`
	Active          bool   `json:"active"`
	Listening       bool   `json:"listening"`
	FeedbackMessage string `json:"feedback_message"`
	Destination     string `json:"destination"`
	Code            string `json:"code"`
	Detail          string `json:"detail"`
}

// turnResult is how one replayed command resolved.
type turnResult struct {
	Text        string
	Navigated   bool
	Destination string
	Latency     time.Duration
}

var defaultUtterances = []string{
	"Smart help me navigate to home page",
	"pulang ke rumah",
	"open the weather",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "civicvoice base URL")
	flag.StringVar(&cfg.userID, "user-id", "perf-replay", "user_id used for the synthetic session")
	flag.StringVar(&cfg.languageCode, "language", "en", "language_code for the synthetic session")
	flag.IntVar(&cfg.turns, "turns", 10, "number of commands to replay")
	flag.BoolVar(&cfg.simulated, "simulated", false, "use start_listening and the server's simulated recognizer instead of sending transcripts")
	flag.IntVar(&startDelayMS, "start-delay-ms", 200, "delay before the first command in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 100, "delay between commands in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "timeout waiting for a command to resolve in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	texts, err := parseTexts(textsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.texts = texts
	return cfg, nil
}

func parseTexts(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("texts produced no non-empty utterances")
	}
	return out, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 15 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("perfvoice: session=%s turns=%d simulated=%t\n", sessionID, cfg.turns, cfg.simulated)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	events := make(chan wsEnvelope, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	results := make([]turnResult, 0, cfg.turns)
	needsActivate := true
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.simulated {
			text = "(simulated)"
		}
		res, err := replayTurn(conn, sessionID, text, cfg, events, readErrCh, needsActivate)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		results = append(results, res)
		// Only a matched command deactivates the session.
		needsActivate = res.Navigated
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d/%d text=%q navigated=%t latency=%s\n", i+1, cfg.turns, res.Text, res.Navigated, res.Latency.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Println(summarize(results))
	return nil
}

func replayTurn(conn *websocket.Conn, sessionID, text string, cfg options, events <-chan wsEnvelope, readErrCh <-chan error, activate bool) (turnResult, error) {
	if activate {
		if err := sendControl(conn, sessionID, protocol.ActionActivate); err != nil {
			return turnResult{}, fmt.Errorf("send activate: %w", err)
		}
		if _, err := await(events, readErrCh, cfg.turnTimeout, func(e wsEnvelope) bool {
			return e.Type == string(protocol.TypeVoiceState) && e.Active
		}); err != nil {
			return turnResult{}, fmt.Errorf("await activation: %w", err)
		}
	}
	drain(events)

	start := time.Now()
	var err error
	if cfg.simulated {
		err = sendControl(conn, sessionID, protocol.ActionStartListening)
	} else {
		err = conn.WriteJSON(protocol.ClientTranscript{
			Type:      protocol.TypeClientTranscript,
			SessionID: sessionID,
			Text:      text,
		})
	}
	if err != nil {
		return turnResult{}, fmt.Errorf("send command: %w", err)
	}

	ev, err := await(events, readErrCh, cfg.turnTimeout, resolved)
	if err != nil {
		return turnResult{}, fmt.Errorf("await result: %w", err)
	}
	res := turnResult{Text: text, Latency: time.Since(start)}
	if ev.Type == string(protocol.TypeNavigation) {
		res.Navigated = true
		res.Destination = ev.Destination
	}
	return res, nil
}

// resolved reports whether ev ends a recognition attempt: a navigation, or a
// state that stopped listening with feedback other than the listening prompt.
func resolved(ev wsEnvelope) bool {
	switch ev.Type {
	case string(protocol.TypeNavigation):
		return true
	case string(protocol.TypeVoiceState):
		return !ev.Listening && ev.FeedbackMessage != "" && ev.FeedbackMessage != "Listening..." && ev.Active
	}
	return false
}

func await(events <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration, match func(wsEnvelope) bool) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev, nil
			}
		case err := <-readErrCh:
			return wsEnvelope{}, fmt.Errorf("ws read: %w", err)
		case <-timer.C:
			return wsEnvelope{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func drain(events <-chan wsEnvelope) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

func sendControl(conn *websocket.Conn, sessionID, action string) error {
	return conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    action,
	})
}

func summarize(results []turnResult) string {
	if len(results) == 0 {
		return "perfvoice: no turns"
	}
	latencies := make([]time.Duration, 0, len(results))
	navigated := 0
	for _, r := range results {
		latencies = append(latencies, r.Latency)
		if r.Navigated {
			navigated++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return fmt.Sprintf("perfvoice: turns=%d navigated=%d p50=%s p95=%s max=%s",
		len(results), navigated,
		percentile(latencies, 0.50).Round(time.Millisecond),
		percentile(latencies, 0.95).Round(time.Millisecond),
		latencies[len(latencies)-1].Round(time.Millisecond))
}

// percentile uses nearest rank on a sorted slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(createSessionRequest{
		UserID:       cfg.userID,
		LanguageCode: cfg.languageCode,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/voice/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/voice/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
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
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/voice/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == string(protocol.TypeErrorEvent) && verbose {
			fmt.Fprintf(os.Stderr, "perfvoice: error_event code=%s detail=%s\n", env.Code, env.Detail)
		}
		select {
		case events <- env:
		default:
		}
	}
}
