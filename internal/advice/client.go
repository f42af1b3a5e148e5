package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnavailable indicates advice is not configured on this server.
	ErrUnavailable = errors.New("advice: unavailable")
	// ErrAdvice indicates the provider failed or returned nothing usable.
	ErrAdvice = errors.New("advice: request failed")
)

// Message is one chat message. ImageURL attaches an image to a user message.
type Message struct {
	Role     string
	Content  string
	ImageURL string
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.ImageURL == "" {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Content})
	}
	return json.Marshal(struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}{m.Role, []contentPart{
		{Type: "text", Text: m.Content},
		{Type: "image_url", ImageURL: &imageURL{URL: m.ImageURL, Detail: "low"}},
	}})
}

// Request is a chat completion request. A nil Temperature uses the provider
// default.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Client completes chat requests.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is an error reported by the provider.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider status %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAdvice }

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	url    string
	apiKey string
	client *http.Client
}

// NewOpenAI creates a client. It fails with ErrUnavailable when no API key is
// configured.
func NewOpenAI(cfg Config, httpClient *http.Client) (*OpenAI, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not configured", ErrUnavailable)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAI{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey: key,
		client: httpClient,
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, r Request) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	res, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdvice, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", decodeAPIError(res)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode completion: %w", ErrAdvice, err)
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("%w: response did not include any choices", ErrAdvice)
	}
	text := strings.TrimSpace(payload.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: response did not include text content", ErrAdvice)
	}
	return text, nil
}

func decodeAPIError(res *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(res.Body, 4096))
	if err != nil {
		return fmt.Errorf("%w: read error body: %w", ErrAdvice, err)
	}
	apiErr := &APIError{Status: res.StatusCode}
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		apiErr.Type = payload.Error.Type
		apiErr.Code = payload.Error.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
