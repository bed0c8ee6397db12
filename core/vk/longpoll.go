package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/m3rciful/menubot/core/logger"
)

// Update is one event from the Bots Long Poll stream.
type Update struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// Message is the inner payload of a message_new update.
type Message struct {
	FromID  int64  `json:"from_id"`
	PeerID  int64  `json:"peer_id"`
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// MessageEvent is the inner payload of a message_event update, produced
// by callback keyboard buttons.
type MessageEvent struct {
	UserID  int64           `json:"user_id"`
	PeerID  int64           `json:"peer_id"`
	EventID string          `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

// LongPoller drives the Bots Long Poll protocol: it holds the current
// server credentials and transparently re-requests them on the failure
// codes that invalidate the key or the session.
type LongPoller struct {
	client *Client
	wait   int

	server string
	key    string
	ts     string
}

const defaultWaitSeconds = 25

// NewLongPoller builds a poller on top of an API client. wait is the
// long poll hold time in seconds; zero selects the protocol default.
func NewLongPoller(client *Client, wait int) *LongPoller {
	if wait <= 0 {
		wait = defaultWaitSeconds
	}
	return &LongPoller{client: client, wait: wait}
}

func (p *LongPoller) refresh(ctx context.Context) error {
	srv, err := p.client.longPollServer(ctx)
	if err != nil {
		return err
	}
	p.server = srv.Server
	p.key = srv.Key
	p.ts = srv.TS
	logger.VK.Info("long poll server acquired",
		slog.String("event", "longpoll.server"),
		slog.String("ts", p.ts),
	)
	return nil
}

type pollResponse struct {
	TS      string   `json:"ts"`
	Updates []Update `json:"updates"`
	Failed  int      `json:"failed"`
}

// Poll blocks for up to the wait interval and returns the accumulated
// updates. An empty slice on a quiet tick is normal.
func (p *LongPoller) Poll(ctx context.Context) ([]Update, error) {
	if p.server == "" {
		if err := p.refresh(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("act", "a_check")
	params.Set("key", p.key)
	params.Set("ts", p.ts)
	params.Set("wait", strconv.Itoa(p.wait))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.server+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("vk: build poll request: %w", err)
	}
	resp, err := p.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk: poll: %w", err)
	}
	defer resp.Body.Close()

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vk: decode poll response: %w", err)
	}

	switch out.Failed {
	case 0:
		p.ts = out.TS
		return out.Updates, nil
	case 1:
		// History is partially outdated; resume from the returned ts.
		p.ts = out.TS
		return nil, nil
	case 2, 3:
		// Key expired or session lost; a fresh server fixes both.
		p.server = ""
		return nil, nil
	default:
		p.server = ""
		return nil, fmt.Errorf("vk: long poll failed with code %d", out.Failed)
	}
}
