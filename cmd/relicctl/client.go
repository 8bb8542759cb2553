package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// apiClient talks to the relic service REST API.
type apiClient struct {
	client *resty.Client
}

func newAPIClient(baseURL, adminKey string) *apiClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	if adminKey != "" {
		c.SetAuthToken(adminKey)
	}
	return &apiClient{client: c}
}

// do sends the request and returns the response body. Any 4xx/5xx becomes
// an error carrying the server's message.
func (a *apiClient) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	req := a.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")
	if resp.IsError() {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(resp.Body(), &e) == nil && e.Message != "" {
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), e.Message)
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.Body(), nil
}

// pretty indents a JSON body for the terminal; other bodies pass through.
func pretty(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}
