package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/pipeline"
)

func stubRunner(leads []*model.Lead, err error) leadRunner {
	return func(ctx context.Context, queries []pipeline.QueryLocation) ([]*model.Lead, *pipeline.Summary, error) {
		if err != nil {
			return nil, nil, err
		}
		return leads, &pipeline.Summary{RunID: "run-1", Leads: len(leads)}, nil
	}
}

func TestServeHealth(t *testing.T) {
	mux := newServeMux(stubRunner(nil, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeLeads(t *testing.T) {
	lead := model.NewLead("ChIJa")
	lead.Name = "Acme Plumbing"
	mux := newServeMux(stubRunner([]*model.Lead{lead}, nil))

	body := strings.NewReader(`{"query":"plumbers","location":"Austin, TX"}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/leads", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp leadsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "Acme Plumbing", resp.Leads[0].Name)
}

func TestServeLeads_MissingQuery(t *testing.T) {
	mux := newServeMux(stubRunner(nil, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/leads", strings.NewReader(`{"location":"Austin"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeLeads_BadBody(t *testing.T) {
	mux := newServeMux(stubRunner(nil, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/leads", strings.NewReader(`{not json`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
