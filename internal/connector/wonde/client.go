// Package wonde pulls school data from the Wonde API.
package wonde

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/connector"
)

// Client is a stateless Wonde API client. The school and its token travel
// with every call, so one Client serves any number of schools concurrently.
type Client struct {
	http     *resty.Client
	pageSize int
	retry    connector.RetryPolicy
	records  connector.RecordWriter
}

// NewClient creates a new Client.
func NewClient(cfg config.ConnectorConfig, records connector.RecordWriter) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	return &Client{
		http:     httpClient,
		pageSize: pageSize,
		retry:    connector.RetryPolicy{MaxRetries: cfg.MaxRetries, Wait: cfg.RetryWait},
		records:  records,
	}
}

// Data is an array for collection endpoints and a single object for "school".
type pageResponse struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Pagination struct {
			More        bool `json:"more"`
			CurrentPage int  `json:"current_page"`
		} `json:"pagination"`
	} `json:"meta"`
}

// RunEndpoint pulls every page of req.Endpoint for req.System's school.
func (c *Client) RunEndpoint(ctx context.Context, req connector.StepRequest) error {
	schoolID := req.System.ExternalSchoolID
	token := req.System.Credentials.String("token")
	if schoolID == "" {
		return fmt.Errorf("wonde config %d: missing school id", req.System.ID)
	}
	if token == "" {
		return fmt.Errorf("wonde config %d: missing token", req.System.ID)
	}

	path := "/schools/" + schoolID
	if req.Endpoint != "school" {
		path += "/" + req.Endpoint
	}

	for page := 1; ; page++ {
		var body pageResponse
		_, err := c.retry.Do(ctx, func() (*resty.Response, error) {
			body = pageResponse{}
			return c.http.R().
				SetContext(ctx).
				SetAuthToken(token).
				SetQueryParam("page", strconv.Itoa(page)).
				SetQueryParam("per_page", strconv.Itoa(c.pageSize)).
				SetResult(&body).
				Get(path)
		})
		if err != nil {
			return fmt.Errorf("wonde %s page %d: %w", req.Endpoint, page, err)
		}

		rows, err := body.rows()
		if err != nil {
			return fmt.Errorf("wonde %s page %d: %w", req.Endpoint, page, err)
		}
		records, err := connector.BuildRecords(req, rows)
		if err != nil {
			return fmt.Errorf("wonde %w", err)
		}
		if err := c.records.UpsertRecords(ctx, records); err != nil {
			return err
		}

		if !body.Meta.Pagination.More {
			return nil
		}
	}
}

func (p pageResponse) rows() ([]json.RawMessage, error) {
	raw := bytes.TrimSpace(p.Data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil, nil
	case raw[0] == '{':
		return []json.RawMessage{raw}, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("malformed data: %w", err)
	}
	return rows, nil
}
