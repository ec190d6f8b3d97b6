package arbor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/connector"
	"github.com/timmy/sissync/internal/domain"
)

type recordSink struct {
	mu      sync.Mutex
	records []domain.SyncedRecord
}

func (s *recordSink) UpsertRecords(_ context.Context, records []domain.SyncedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func testSystem(baseURL string) domain.SystemConfig {
	return domain.SystemConfig{
		ID:               1,
		Source:           domain.SourceArbor,
		ExternalSchoolID: "ARB-1",
		Credentials:      domain.Credentials{"base_url": baseURL, "username": "u", "password": "p"},
	}
}

func TestClient_RunEndpointPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/students", r.URL.Path)
		assert.Equal(t, "2025", r.URL.Query().Get("academic_year"))
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[{"id":%q}],"pagination":{"page":%s,"total_pages":2}}`, "s"+page, page)
	}))
	defer srv.Close()

	sink := &recordSink{}
	factory := NewFactory(config.ConnectorConfig{PageSize: 1}, sink)
	sys := testSystem(srv.URL)

	adapter, err := factory.NewAdapter(sys)
	require.NoError(t, err)

	err = adapter.RunEndpoint(context.Background(), connector.StepRequest{
		RunID: "run-1", System: sys, Endpoint: "students", AcademicYear: "2025",
	})
	require.NoError(t, err)
	require.Len(t, sink.records, 2)
	assert.Equal(t, "s1", sink.records[0].ExternalID)
	assert.Equal(t, "s2", sink.records[1].ExternalID)
	assert.Equal(t, domain.SourceArbor, sink.records[0].Source)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[],"pagination":{"page":1,"total_pages":1}}`)
	}))
	defer srv.Close()

	factory := NewFactory(config.ConnectorConfig{MaxRetries: 3, RetryWait: time.Millisecond}, &recordSink{})
	sys := testSystem(srv.URL)
	adapter, err := factory.NewAdapter(sys)
	require.NoError(t, err)

	err = adapter.RunEndpoint(context.Background(), connector.StepRequest{System: sys, Endpoint: "staff"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	factory := NewFactory(config.ConnectorConfig{MaxRetries: 3, RetryWait: time.Millisecond}, &recordSink{})
	sys := testSystem(srv.URL)
	adapter, err := factory.NewAdapter(sys)
	require.NoError(t, err)

	err = adapter.RunEndpoint(context.Background(), connector.StepRequest{System: sys, Endpoint: "staff"})
	require.Error(t, err)

	var statusErr *connector.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFactory_IsolatesSchools(t *testing.T) {
	factory := NewFactory(config.ConnectorConfig{BaseURL: "http://arbor.invalid"}, &recordSink{})

	a, err := factory.NewAdapter(domain.SystemConfig{ID: 1, Credentials: domain.Credentials{"username": "u", "password": "p"}})
	require.NoError(t, err)
	b, err := factory.NewAdapter(domain.SystemConfig{ID: 2, Credentials: domain.Credentials{"username": "u", "password": "p"}})
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	err = a.RunEndpoint(context.Background(), connector.StepRequest{System: domain.SystemConfig{ID: 2}, Endpoint: "staff"})
	assert.Error(t, err)

	_, err = factory.NewAdapter(domain.SystemConfig{ID: 3})
	assert.Error(t, err)
}
