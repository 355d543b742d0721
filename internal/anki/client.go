package anki

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultURL = "http://127.0.0.1:8765"

	protocolVersion = 6

	ModelBasic = "Basic"
	ModelCloze = "Cloze"
)

// Client talks to a local AnkiConnect endpoint: one JSON action envelope per
// call, result-or-error response.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

func (c *Client) invoke(ctx context.Context, action string, params any, out any) error {
	reqBody, err := json.Marshal(request{Action: action, Version: protocolVersion, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", action, err)
	}

	maxRetries := 2
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("create %s request: %w", action, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("execute %s request: %w", action, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read %s response: %w", action, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s failed: status=%d, body=%s", action, resp.StatusCode, string(body))
			// 4xx means the request itself is wrong; retrying cannot help.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return lastErr
			}
			continue
		}

		var envelope response
		if err := json.Unmarshal(body, &envelope); err != nil {
			lastErr = fmt.Errorf("unmarshal %s response: %w", action, err)
			continue
		}
		if envelope.Error != nil && *envelope.Error != "" {
			return fmt.Errorf("%s: %s", action, *envelope.Error)
		}
		if out != nil && len(envelope.Result) > 0 {
			if err := json.Unmarshal(envelope.Result, out); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", action, err)
			}
		}
		return nil
	}
	return lastErr
}

// Ping verifies the automation endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Version returns the endpoint's protocol version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.invoke(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// DeckNames lists the decks known to the application.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// CreateDeck creates the deck if it does not exist yet.
func (c *Client) CreateDeck(ctx context.Context, name string) error {
	return c.invoke(ctx, "createDeck", map[string]any{"deck": name}, nil)
}

// ModelNames lists the note models the application knows.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "modelNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// StoreMediaFile uploads one media attachment by inline payload.
func (c *Client) StoreMediaFile(ctx context.Context, filename string, data []byte) error {
	return c.invoke(ctx, "storeMediaFile", map[string]any{
		"filename": filename,
		"data":     base64.StdEncoding.EncodeToString(data),
	}, nil)
}
