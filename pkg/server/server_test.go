package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/contextbuilder"
	"github.com/ohadalab/sycora/pkg/engine"
	"github.com/ohadalab/sycora/pkg/intent"
	"github.com/ohadalab/sycora/pkg/llms"
	"github.com/ohadalab/sycora/pkg/reformulate"
	"github.com/ohadalab/sycora/pkg/search"
	"github.com/ohadalab/sycora/pkg/search/hybrid"
)

type stubGenerator struct {
	text   string
	chunks []string
}

func (s *stubGenerator) Complete(ctx context.Context, system, user string, opts llms.GenerateOptions) (string, error) {
	return s.text, nil
}

func (s *stubGenerator) CompleteStream(ctx context.Context, system, user string, opts llms.GenerateOptions) (<-chan llms.StreamChunk, error) {
	ch := make(chan llms.StreamChunk, len(s.chunks)+1)
	for _, text := range s.chunks {
		ch <- llms.StreamChunk{Type: llms.ChunkTypeText, Text: text}
	}
	ch <- llms.StreamChunk{Type: llms.ChunkTypeDone}
	close(ch)
	return ch, nil
}

type stubRetriever struct {
	candidates []search.Candidate
	lastFilter search.Filter
}

func (s *stubRetriever) SearchHybrid(ctx context.Context, query string, filter search.Filter, k int, rerank bool) ([]search.Candidate, hybrid.Timings, error) {
	s.lastFilter = filter
	return s.candidates, hybrid.Timings{}, nil
}

func newTestServer(t *testing.T, gen *stubGenerator, ret *stubRetriever) *Server {
	t.Helper()
	persona := config.PersonalityConfig{}
	persona.SetDefaults()

	eng := engine.New(
		gen,
		intent.NewClassifier(gen, persona),
		reformulate.New(gen),
		ret,
		contextbuilder.New(1800),
		nil,
	)

	cfg := &config.ServerConfig{}
	cfg.SetDefaults()
	return New(eng, cfg)
}

func TestHandleQuery(t *testing.T) {
	gen := &stubGenerator{text: "L'amortissement se comptabilise au compte 68."}
	ret := &stubRetriever{candidates: []search.Candidate{
		{ID: "doc-1", Text: "extrait", RelevanceScore: 0.9},
	}}
	srv := newTestServer(t, gen, ret)

	body, _ := json.Marshal(map[string]any{
		"query":           "comment comptabiliser un amortissement ?",
		"include_sources": true,
		"partie":          2,
	})
	req := httptest.NewRequest("POST", "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var answer engine.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "L'amortissement se comptabilise au compte 68.", answer.Answer)
	assert.Equal(t, intent.IntentTechnical, answer.Intent)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, search.Filter{"partie": 2}, ret.lastFilter)
}

func TestHandleQueryInvalidBody(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	req := httptest.NewRequest("POST", "/query", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryEmptyQuery(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"  "}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStream(t *testing.T) {
	gen := &stubGenerator{chunks: []string{"Le bilan ", "présente..."}}
	ret := &stubRetriever{candidates: []search.Candidate{
		{ID: "doc-1", Text: "extrait", RelevanceScore: 0.9},
	}}
	srv := newTestServer(t, gen, ret)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream?query=" + strings.ReplaceAll("comment comptabiliser un amortissement", " ", "+"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(raw)

	assert.Contains(t, stream, "event: start\n")
	assert.Contains(t, stream, "event: progress\n")
	assert.Contains(t, stream, "event: chunk\n")
	assert.Contains(t, stream, "event: complete\n")
	assert.Contains(t, stream, `"status":"retrieving"`)
	assert.Contains(t, stream, "Le bilan ")
}

func TestHandleStreamMissingQuery(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Validation fails after the SSE stream is open, so the failure arrives
	// as an error event rather than a status code.
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event: error\n")
}

func TestHandleStreamInvalidParam(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	req := httptest.NewRequest("GET", "/stream?query=bonjour&partie=abc", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	gen := &stubGenerator{text: "Bonjour !"}
	srv := newTestServer(t, gen, &stubRetriever{})

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"bonjour"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var answer engine.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))

	req = httptest.NewRequest("GET", "/status/"+answer.ID, nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, engine.StatusCompleted, status.Status)
}

func TestHandleStatusUnknown(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	req := httptest.NewRequest("GET", "/status/inconnu", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "cache")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{}, &stubRetriever{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
