// Package hasura applies a table/relationship manifest to a Hasura instance
// through the metadata API, issuing only the calls whose effect is missing.
package hasura

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultEndpoint = "http://localhost:8081/v1/metadata"

// ErrMetadata is returned for non-2xx metadata API responses.
var ErrMetadata = errors.New("hasura metadata request failed")

type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(endpoint, adminSecret string, log *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		secret:     adminSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type query struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`
	Args    any    `json:"args"`
}

func (c *Client) call(ctx context.Context, q query, out any) error {
	body, err := json.Marshal(q)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("x-hasura-admin-secret", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", q.Type, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", q.Type, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d: %s", ErrMetadata, q.Type, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", q.Type, err)
		}
	}
	return nil
}

// Metadata is the subset of exported metadata the planner inspects.
type Metadata struct {
	Sources []struct {
		Name   string `json:"name"`
		Tables []struct {
			Table               Table `json:"table"`
			ObjectRelationships []struct {
				Name string `json:"name"`
			} `json:"object_relationships"`
			ArrayRelationships []struct {
				Name string `json:"name"`
			} `json:"array_relationships"`
		} `json:"tables"`
	} `json:"sources"`
}

func (c *Client) ExportMetadata(ctx context.Context) (*Metadata, error) {
	var resp struct {
		ResourceVersion int      `json:"resource_version"`
		Metadata        Metadata `json:"metadata"`
	}
	if err := c.call(ctx, query{Type: "export_metadata", Version: 2, Args: map[string]any{}}, &resp); err != nil {
		return nil, err
	}
	return &resp.Metadata, nil
}
