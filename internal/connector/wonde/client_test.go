package wonde

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

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

func TestClient_SchoolIDIsExplicit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/schools/W1/students":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			if r.URL.Query().Get("page") == "1" {
				fmt.Fprint(w, `{"data":[{"id":"a"},{"id":"b"}],"meta":{"pagination":{"more":true,"current_page":1}}}`)
				return
			}
			fmt.Fprint(w, `{"data":[{"id":"c"}],"meta":{"pagination":{"more":false,"current_page":2}}}`)
		case "/schools/W2/students":
			assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"data":[{"id":"z"}],"meta":{"pagination":{"more":false}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sink := &recordSink{}
	client := NewClient(config.ConnectorConfig{BaseURL: srv.URL}, sink)

	w1 := domain.SystemConfig{ID: 1, Source: domain.SourceWonde, ExternalSchoolID: "W1", Credentials: domain.Credentials{"token": "tok-1"}}
	w2 := domain.SystemConfig{ID: 2, Source: domain.SourceWonde, ExternalSchoolID: "W2", Credentials: domain.Credentials{"token": "tok-2"}}

	require.NoError(t, client.RunEndpoint(context.Background(), connector.StepRequest{System: w1, Endpoint: "students"}))
	require.NoError(t, client.RunEndpoint(context.Background(), connector.StepRequest{System: w2, Endpoint: "students"}))

	require.Len(t, sink.records, 4)
	assert.Equal(t, "c", sink.records[2].ExternalID)
	assert.Equal(t, "W2", sink.records[3].ExternalSchoolID)
}

func TestClient_SchoolEndpointSingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schools/W1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"id":"W1","name":"Hill School"}}`)
	}))
	defer srv.Close()

	sink := &recordSink{}
	client := NewClient(config.ConnectorConfig{BaseURL: srv.URL}, sink)
	sys := domain.SystemConfig{ID: 1, Source: domain.SourceWonde, ExternalSchoolID: "W1", Credentials: domain.Credentials{"token": "t"}}

	require.NoError(t, client.RunEndpoint(context.Background(), connector.StepRequest{System: sys, Endpoint: "school"}))
	require.Len(t, sink.records, 1)
	assert.Equal(t, "W1", sink.records[0].ExternalID)
}

func TestClient_MissingToken(t *testing.T) {
	client := NewClient(config.ConnectorConfig{BaseURL: "http://wonde.invalid"}, &recordSink{})
	err := client.RunEndpoint(context.Background(), connector.StepRequest{
		System:   domain.SystemConfig{ID: 9, ExternalSchoolID: "W9"},
		Endpoint: "students",
	})
	assert.ErrorContains(t, err, "missing token")
}
