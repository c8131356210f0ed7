package rxnorm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oncosaferx/edge/internal/ddi"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://rxnav.nlm.nih.gov/REST"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Search looks a drug up by name and returns its RxCUI and normalized name.
// It returns empty strings if the drug is not found. A transport error on the
// first lookup is returned; later lookups degrade to partial results.
func (c *Client) Search(ctx context.Context, name string) (string, string, error) {
	// 1. Exact match
	var exact struct {
		IdGroup struct {
			RxNormId []string `json:"rxnormId"`
		} `json:"idGroup"`
	}
	found, err := c.getJSON(ctx, "/rxcui.json?name="+url.QueryEscape(name), &exact)
	if err != nil {
		return "", "", fmt.Errorf("failed to search rxnorm: %w", err)
	}

	rxcui := ""
	if found && len(exact.IdGroup.RxNormId) > 0 {
		rxcui = exact.IdGroup.RxNormId[0]
	}

	// 1b. Approximate match
	if rxcui == "" {
		rxcui = c.searchApproximate(ctx, name)
	}
	if rxcui == "" {
		return "", "", nil
	}

	// 2. Normalized name
	var props struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	}
	if ok, err := c.getJSON(ctx, "/rxcui/"+url.PathEscape(rxcui)+"/properties.json", &props); err != nil || !ok {
		return rxcui, "", nil
	}
	return rxcui, props.Properties.Name, nil
}

func (c *Client) searchApproximate(ctx context.Context, term string) string {
	var approx struct {
		ApproximateGroup struct {
			Candidate []struct {
				Rxcui string `json:"rxcui"`
				Score string `json:"score"`
			} `json:"candidate"`
		} `json:"approximateGroup"`
	}
	ok, err := c.getJSON(ctx, "/approximateTerm.json?maxEntries=1&term="+url.QueryEscape(term), &approx)
	if err != nil || !ok || len(approx.ApproximateGroup.Candidate) == 0 {
		return ""
	}
	return approx.ApproximateGroup.Candidate[0].Rxcui
}

// getJSON reports false without error for non-200 responses and undecodable
// bodies.
func (c *Client) getJSON(ctx context.Context, path string, dst any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return false, nil
	}
	return true, nil
}

// ResolveAliases fills in RxCUI for aliases that arrive without one, using
// the canonical name. Lookup failures leave the alias unchanged.
func (c *Client) ResolveAliases(ctx context.Context, aliases []ddi.Alias, log *zap.Logger) []ddi.Alias {
	out := make([]ddi.Alias, len(aliases))
	cache := make(map[string]string)
	for i, a := range aliases {
		out[i] = a
		if a.RxCUI != "" {
			continue
		}
		key := strings.ToLower(a.CanonicalName)
		rxcui, seen := cache[key]
		if !seen {
			var err error
			rxcui, _, err = c.Search(ctx, a.CanonicalName)
			if err != nil {
				log.Warn("rxnorm lookup failed", zap.String("canonical_name", a.CanonicalName), zap.Error(err))
			}
			cache[key] = rxcui
		}
		out[i].RxCUI = rxcui
	}
	return out
}
