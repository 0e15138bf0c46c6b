// Package deployments lists LangGraph deployments through the LangSmith
// control-plane API.
package deployments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/olekukonko/tablewriter"
)

type Deployment struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    *string `json:"status,omitempty"`
	CreatedAt *string `json:"created_at,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// List fetches the deployments visible to the API key, optionally filtered
// to names containing the given substring.
func (c *Client) List(ctx context.Context, nameContains string) ([]Deployment, error) {
	u := c.baseURL + "/v2/deployments"
	if nameContains != "" {
		u += "?" + url.Values{"name_contains": {nameContains}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("list deployments: status %d: %s", resp.StatusCode, string(body))
	}

	var page struct {
		Resources []Deployment `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return page.Resources, nil
}

// Render writes the deployments as a table.
func Render(w io.Writer, ds []Deployment) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Status"})
	for _, d := range ds {
		status := ""
		if d.Status != nil {
			status = *d.Status
		}
		table.Append([]string{d.ID, d.Name, status})
	}
	table.Render()
}
