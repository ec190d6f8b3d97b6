// Package arbor pulls school data from the Arbor API.
//
// An Arbor client is bound to a single school for its whole lifetime, so
// callers build one per system through Factory and never share it.
package arbor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
)

// Factory builds per-school Arbor clients.
type Factory struct {
	cfg     config.ConnectorConfig
	records connector.RecordWriter
}

// NewFactory creates a new Factory.
func NewFactory(cfg config.ConnectorConfig, records connector.RecordWriter) *Factory {
	return &Factory{cfg: cfg, records: records}
}

// Source returns domain.SourceArbor.
func (f *Factory) Source() domain.Source {
	return domain.SourceArbor
}

// NewAdapter returns a client bound to sys. Credentials must carry username
// and password; base_url overrides the configured default.
func (f *Factory) NewAdapter(sys domain.SystemConfig) (connector.Adapter, error) {
	username := sys.Credentials.String("username")
	password := sys.Credentials.String("password")
	if username == "" || password == "" {
		return nil, fmt.Errorf("arbor config %d: missing username or password", sys.ID)
	}
	baseURL := sys.Credentials.String("base_url")
	if baseURL == "" {
		baseURL = f.cfg.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("arbor config %d: no base url", sys.ID)
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetBasicAuth(username, password).
		SetHeader("Accept", "application/json")
	if f.cfg.Timeout > 0 {
		httpClient.SetTimeout(f.cfg.Timeout)
	}

	pageSize := f.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	return &Client{
		http:     httpClient,
		school:   sys,
		pageSize: pageSize,
		retry:    connector.RetryPolicy{MaxRetries: f.cfg.MaxRetries, Wait: f.cfg.RetryWait},
		records:  f.records,
	}, nil
}

// Client is an Arbor API client bound to one school.
type Client struct {
	http     *resty.Client
	school   domain.SystemConfig
	pageSize int
	retry    connector.RetryPolicy
	records  connector.RecordWriter
}

type pageResponse struct {
	Data       []json.RawMessage `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"pagination"`
}

// RunEndpoint pulls every page of req.Endpoint for the bound school.
func (c *Client) RunEndpoint(ctx context.Context, req connector.StepRequest) error {
	if req.System.ID != c.school.ID {
		return fmt.Errorf("arbor client bound to config %d, got %d", c.school.ID, req.System.ID)
	}

	for page := 1; ; page++ {
		var body pageResponse
		_, err := c.retry.Do(ctx, func() (*resty.Response, error) {
			body = pageResponse{}
			r := c.http.R().
				SetContext(ctx).
				SetQueryParam("page", strconv.Itoa(page)).
				SetQueryParam("page_size", strconv.Itoa(c.pageSize)).
				SetResult(&body)
			if req.AcademicYear != "" {
				r.SetQueryParam("academic_year", req.AcademicYear)
			}
			return r.Get("/" + req.Endpoint)
		})
		if err != nil {
			return fmt.Errorf("arbor %s page %d: %w", req.Endpoint, page, err)
		}

		records, err := connector.BuildRecords(req, body.Data)
		if err != nil {
			return fmt.Errorf("arbor %w", err)
		}
		if err := c.records.UpsertRecords(ctx, records); err != nil {
			return err
		}

		if len(body.Data) == 0 || page >= body.Pagination.TotalPages {
			return nil
		}
	}
}
