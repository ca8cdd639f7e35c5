package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/isoauditor/internal/protocol"
)

type replayOptions struct {
	baseURL        string
	token          string
	userID         string
	userHeader     string
	turns          int
	turnTimeout    time.Duration
	interTurnDelay time.Duration
	texts          []string
	keepSession    bool
	verbose        bool
}

type turnTiming struct {
	FirstDelta time.Duration
	Total      time.Duration
	Deltas     int
}

var defaultQuestions = []string{
	"What does clause 6.1.2 require for information security risk assessment?",
	"Which Annex A controls are new in the 2022 revision?",
	"How should I prepare for a stage 1 certification audit?",
	"What evidence shows top management approved the information security policy?",
}

func newReplayCmd() *cobra.Command {
	var (
		opts     replayOptions
		textsRaw string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay scripted questions over the query websocket and report latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.baseURL = strings.TrimRight(strings.TrimSpace(opts.baseURL), "/")
			if opts.baseURL == "" {
				return fmt.Errorf("base-url is required")
			}
			if opts.turns <= 0 {
				return fmt.Errorf("turns must be > 0")
			}
			if opts.turnTimeout < time.Second {
				opts.turnTimeout = time.Second
			}
			opts.texts = splitTexts(textsRaw)
			if len(opts.texts) == 0 {
				opts.texts = append([]string(nil), defaultQuestions...)
			}

			timings, err := runReplay(cmd.Context(), cmd.OutOrStdout(), opts)
			if err != nil {
				return err
			}
			printTimings(cmd.OutOrStdout(), timings)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8000", "auditor base URL")
	f.StringVar(&opts.token, "token", "", "bearer token (jwt auth mode)")
	f.StringVar(&opts.userID, "user-id", "replay", "user id sent in header auth mode")
	f.StringVar(&opts.userHeader, "user-header", "X-User-ID", "header carrying the user id")
	f.IntVar(&opts.turns, "turns", 8, "number of questions to send")
	f.DurationVar(&opts.turnTimeout, "turn-timeout", 45*time.Second, "timeout waiting for answer_complete")
	f.DurationVar(&opts.interTurnDelay, "inter-turn", 200*time.Millisecond, "delay between questions")
	f.StringVar(&textsRaw, "texts", "", "questions separated by '|' (optional)")
	f.BoolVar(&opts.keepSession, "keep-session", false, "do not delete the replay session afterwards")
	f.BoolVar(&opts.verbose, "verbose", true, "print replay progress")
	return cmd
}

func splitTexts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (o replayOptions) authHeader() http.Header {
	h := http.Header{}
	if strings.TrimSpace(o.token) != "" {
		h.Set("Authorization", "Bearer "+strings.TrimSpace(o.token))
	} else if strings.TrimSpace(o.userID) != "" {
		h.Set(o.userHeader, o.userID)
	}
	return h
}

func runReplay(ctx context.Context, out io.Writer, opts replayOptions) ([]turnTiming, error) {
	client := resty.New().
		SetBaseURL(opts.baseURL).
		SetTimeout(30 * time.Second)
	for k, vs := range opts.authHeader() {
		for _, v := range vs {
			client.Header.Add(k, v)
		}
	}

	var created struct {
		SessionID string `json:"session_id"`
	}
	res, err := client.R().SetContext(ctx).SetResult(&created).Post("/api/v1/session/new")
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if res.IsError() || created.SessionID == "" {
		return nil, fmt.Errorf("create session: HTTP %d: %s", res.StatusCode(), strings.TrimSpace(res.String()))
	}
	sessionID := created.SessionID
	if !opts.keepSession {
		defer func() {
			_, _ = client.R().Delete("/api/v1/session/" + url.PathEscape(sessionID))
		}()
	}

	wsURL, err := queryWSURL(opts.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, opts.authHeader())
	if err != nil {
		return nil, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if opts.verbose {
		fmt.Fprintf(out, "replay: session=%s turns=%d\n", sessionID, opts.turns)
	}

	events := make(chan wsEnvelope, 256)
	readErrCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readLoop(conn, events, readErrCh, done)

	timings := make([]turnTiming, 0, opts.turns)
	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		if opts.verbose {
			fmt.Fprintf(out, "replay: turn %d/%d %q\n", i+1, opts.turns, text)
		}
		requestID := fmt.Sprintf("replay-%d", i+1)
		start := time.Now()
		if err := conn.WriteJSON(protocol.ClientQuery{
			Type:      protocol.TypeClientQuery,
			RequestID: requestID,
			SessionID: sessionID,
			Query:     text,
		}); err != nil {
			return timings, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		timing, err := awaitAnswer(events, readErrCh, requestID, start, opts.turnTimeout)
		if err != nil {
			return timings, fmt.Errorf("turn %d: %w", i+1, err)
		}
		timings = append(timings, timing)
		if opts.interTurnDelay > 0 && i < opts.turns-1 {
			time.Sleep(opts.interTurnDelay)
		}
	}
	return timings, nil
}

func queryWSURL(baseURL string) (string, error) {
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
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/query/ws"
	return u.String(), nil
}

type wsEnvelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	TextDelta string `json:"text_delta,omitempty"`
}

// readLoop forwards server messages until the connection fails or done is closed.
func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error, done <-chan struct{}) {
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
		select {
		case events <- env:
		case <-done:
			return
		}
	}
}

func awaitAnswer(events <-chan wsEnvelope, readErrCh <-chan error, requestID string, start time.Time, timeout time.Duration) (turnTiming, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var t turnTiming
	for {
		select {
		case env := <-events:
			if env.RequestID != "" && env.RequestID != requestID {
				continue
			}
			switch protocol.MessageType(env.Type) {
			case protocol.TypeAnswerDelta:
				if t.Deltas == 0 {
					t.FirstDelta = time.Since(start)
				}
				t.Deltas++
			case protocol.TypeAnswerComplete:
				t.Total = time.Since(start)
				return t, nil
			case protocol.TypeErrorEvent:
				return t, fmt.Errorf("error_event code=%s detail=%s", env.Code, env.Detail)
			}
		case err := <-readErrCh:
			return t, err
		case <-timer.C:
			return t, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func printTimings(out io.Writer, timings []turnTiming) {
	if len(timings) == 0 {
		return
	}
	first := make([]float64, 0, len(timings))
	total := make([]float64, 0, len(timings))
	for _, t := range timings {
		first = append(first, float64(t.FirstDelta.Milliseconds()))
		total = append(total, float64(t.Total.Milliseconds()))
	}
	sort.Float64s(first)
	sort.Float64s(total)
	fmt.Fprintf(out, "replay: turns=%d first_delta_p50=%.0fms first_delta_max=%.0fms total_p50=%.0fms total_max=%.0fms\n",
		len(timings), first[len(first)/2], first[len(first)-1], total[len(total)/2], total[len(total)-1])
}
