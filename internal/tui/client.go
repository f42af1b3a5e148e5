package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/server"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to a server about one game.
type Client struct {
	baseURL string
	gameID  string
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a client for gameID on the server at baseURL.
func NewClient(baseURL, gameID string, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		gameID:  gameID,
		http:    httpClient,
		logger:  logger.WithPrefix("client"),
	}
}

// CreateGame asks the server at baseURL for a new game seated with players
// and returns its id.
func CreateGame(ctx context.Context, httpClient *http.Client, baseURL string, players []string, seed *int64) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	body, err := json.Marshal(map[string]any{"players": players, "seed": seed})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/api/games", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		GameID string `json:"game_id"`
		server.ErrorData
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &APIError{Status: resp.StatusCode, Code: out.Code, Message: out.Error}
	}
	return out.GameID, nil
}

// GameID returns the game this client follows.
func (c *Client) GameID() string { return c.gameID }

// State fetches the latest state.
func (c *Client) State(ctx context.Context) (server.GameView, error) {
	return c.do(ctx, http.MethodGet, "/api/games/"+url.PathEscape(c.gameID)+"/states/latest", nil)
}

// Submit posts action, or a bot tick when action is nil, against the state
// at expected.
func (c *Client) Submit(ctx context.Context, action *game.Action, expected int) (server.GameView, error) {
	body, err := json.Marshal(map[string]any{
		"action":               action,
		"expected_state_index": expected,
	})
	if err != nil {
		return server.GameView{}, err
	}
	return c.do(ctx, http.MethodPost, "/api/games/"+url.PathEscape(c.gameID)+"/actions", body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (server.GameView, error) {
	var view server.GameView
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return view, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return view, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return view, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e server.ErrorData
		if err := json.Unmarshal(raw, &e); err != nil {
			e.Error = strings.TrimSpace(string(raw))
		}
		return view, &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		return view, fmt.Errorf("decode state: %w", err)
	}
	return view, nil
}

// Watch subscribes to the game's state feed. The channel closes when ctx
// ends or the connection drops.
func (c *Client) Watch(ctx context.Context) (<-chan server.GameView, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/games/" + url.PathEscape(c.gameID) + "/ws"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	views := make(chan server.GameView, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(views)
		for {
			var msg server.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("State feed closed", "error", err)
				}
				return
			}
			if msg.Type != server.MessageTypeState {
				continue
			}
			var view server.GameView
			if err := json.Unmarshal(msg.Data, &view); err != nil {
				c.logger.Warn("Discarding malformed state", "error", err)
				continue
			}
			select {
			case views <- view:
			case <-ctx.Done():
				return
			}
		}
	}()
	return views, nil
}
