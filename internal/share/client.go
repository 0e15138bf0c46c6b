// Package share fetches publicly shared traces. A share token grants
// unauthenticated read access to one trace via the /public endpoints.
package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/langchain-ai/langsmith-trace-tools/internal/model"
)

const defaultPageSize = 100

type Client struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:  baseURL,
		token:    token,
		pageSize: defaultPageSize,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RootRun fetches the root run of the shared trace.
func (c *Client) RootRun(ctx context.Context) (*model.Run, error) {
	var run model.Run
	u := fmt.Sprintf("%s/public/%s/run", c.baseURL, c.token)
	if err := c.get(ctx, u, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs fetches every run in the shared trace, paging through the query
// endpoint until a short or empty page signals the end.
func (c *Client) Runs(ctx context.Context) ([]model.Run, error) {
	var runs []model.Run
	offset := 0
	for {
		payload, err := json.Marshal(map[string]int{
			"offset": offset,
			"limit":  c.pageSize,
		})
		if err != nil {
			return nil, err
		}

		u := fmt.Sprintf("%s/public/%s/runs/query", c.baseURL, c.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		var page struct {
			Runs []model.Run `json:"runs"`
		}
		if err := c.do(req, &page); err != nil {
			return nil, err
		}
		if len(page.Runs) == 0 {
			break
		}
		runs = append(runs, page.Runs...)
		offset += len(page.Runs)
		if len(page.Runs) < c.pageSize {
			break
		}
	}
	return runs, nil
}

// Feedbacks fetches the feedback entries attached to the shared runs,
// optionally restricted to specific run IDs.
func (c *Client) Feedbacks(ctx context.Context, runIDs []string) ([]model.Feedback, error) {
	var feedbacks []model.Feedback
	offset := 0
	for {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.pageSize))
		for _, id := range runIDs {
			q.Add("run", id)
		}

		u := fmt.Sprintf("%s/public/%s/feedbacks?%s", c.baseURL, c.token, q.Encode())
		var page []model.Feedback
		if err := c.get(ctx, u, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		feedbacks = append(feedbacks, page...)
		offset += len(page)
		if len(page) < c.pageSize {
			break
		}
	}
	return feedbacks, nil
}

func (c *Client) get(ctx context.Context, u string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
