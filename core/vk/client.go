package vk

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/menubot/core/logger"
)

const apiBaseURL = "https://api.vk.com/method/"

// Client is a minimal VK Bots API client covering the handful of
// methods the menu engine needs.
type Client struct {
	http    *http.Client
	token   string
	version string
	groupID int64
}

// NewClient builds a VK API client bound to one community token.
func NewClient(httpClient *http.Client, token, version string, groupID int64) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, token: token, version: version, groupID: groupID}
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

type apiEnvelope struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

// Call invokes a VK API method with form-encoded params and returns the
// raw response payload.
func (c *Client) Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.token)
	params.Set("v", c.version)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBaseURL+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("vk: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("vk: decode %s response: %w", method, err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("vk: %s: %w", method, env.Error)
	}
	if logger.ShouldSampleDebug() {
		logger.VK.Debug("api call",
			slog.String("event", "api.call"),
			slog.String("method", method),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return env.Response, nil
}

// randomID derives the messages.send deduplication id from a fresh
// UUID. VK treats it as an int32 scoped to the peer.
func randomID() int64 {
	id := uuid.New()
	v := binary.BigEndian.Uint32(id[:4]) & 0x7fffffff
	return int64(v)
}

// SendMessage sends text to a peer. The keyboard JSON is attached when
// non-empty, the attachment string likewise.
func (c *Client) SendMessage(ctx context.Context, peerID int64, text, keyboard, attachment string) error {
	params := url.Values{}
	params.Set("peer_id", strconv.FormatInt(peerID, 10))
	params.Set("random_id", strconv.FormatInt(randomID(), 10))
	if text != "" {
		params.Set("message", text)
	}
	if keyboard != "" {
		params.Set("keyboard", keyboard)
	}
	if attachment != "" {
		params.Set("attachment", attachment)
	}
	_, err := c.Call(ctx, "messages.send", params)
	return err
}

// AnswerEvent acknowledges a callback button press so the client stops
// showing a spinner.
func (c *Client) AnswerEvent(ctx context.Context, eventID string, userID, peerID int64) error {
	params := url.Values{}
	params.Set("event_id", eventID)
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("peer_id", strconv.FormatInt(peerID, 10))
	_, err := c.Call(ctx, "messages.sendMessageEventAnswer", params)
	return err
}

type longPollServer struct {
	Key    string `json:"key"`
	Server string `json:"server"`
	TS     string `json:"ts"`
}

func (c *Client) longPollServer(ctx context.Context) (*longPollServer, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(c.groupID, 10))
	raw, err := c.Call(ctx, "groups.getLongPollServer", params)
	if err != nil {
		return nil, err
	}
	var srv longPollServer
	if err := json.Unmarshal(raw, &srv); err != nil {
		return nil, fmt.Errorf("vk: decode long poll server: %w", err)
	}
	return &srv, nil
}

type uploadServer struct {
	UploadURL string `json:"upload_url"`
}

type savedDoc struct {
	Type string `json:"type"`
	Doc  struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
	} `json:"doc"`
}

// UploadDocument pushes a local file through the messages upload flow
// and returns the attachment string for messages.send.
func (c *Client) UploadDocument(ctx context.Context, peerID int64, path string) (string, error) {
	params := url.Values{}
	params.Set("type", "doc")
	params.Set("peer_id", strconv.FormatInt(peerID, 10))
	raw, err := c.Call(ctx, "docs.getMessagesUploadServer", params)
	if err != nil {
		return "", err
	}
	var srv uploadServer
	if err := json.Unmarshal(raw, &srv); err != nil {
		return "", fmt.Errorf("vk: decode upload server: %w", err)
	}

	fileField, err := c.uploadFile(ctx, srv.UploadURL, path)
	if err != nil {
		return "", err
	}

	saveParams := url.Values{}
	saveParams.Set("file", fileField)
	saveParams.Set("title", filepath.Base(path))
	rawSaved, err := c.Call(ctx, "docs.save", saveParams)
	if err != nil {
		return "", err
	}
	var saved savedDoc
	if err := json.Unmarshal(rawSaved, &saved); err != nil {
		return "", fmt.Errorf("vk: decode saved doc: %w", err)
	}
	if saved.Doc.ID == 0 {
		return "", fmt.Errorf("vk: docs.save returned no document")
	}
	return fmt.Sprintf("doc%d_%d", saved.Doc.OwnerID, saved.Doc.ID), nil
}

func (c *Client) uploadFile(ctx context.Context, uploadURL, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("vk: open upload file: %w", err)
	}
	defer f.Close()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("vk: read upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, strings.NewReader(body.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("vk: upload file: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("vk: decode upload response: %w", err)
	}
	if result.File == "" {
		return "", fmt.Errorf("vk: upload server returned empty file field")
	}
	return result.File, nil
}
