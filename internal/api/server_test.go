package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetrov/ideaharvest/internal/ideas"
	storemem "github.com/mpetrov/ideaharvest/internal/storage/memory"
)

func TestHealthz(t *testing.T) {
	srv := NewServer(":0", storemem.NewIdeaStore(), prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzOK(t *testing.T) {
	srv := NewServer(":0", storemem.NewIdeaStore(), prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

type downStore struct {
	*storemem.IdeaStore
}

func (s *downStore) CountUnprocessed(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestReadyzStoreDown(t *testing.T) {
	srv := NewServer(":0", &downStore{storemem.NewIdeaStore()}, prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ideaharvest_test_total", Help: "test"})
	require.NoError(t, reg.Register(counter))
	counter.Inc()

	srv := NewServer(":0", storemem.NewIdeaStore(), reg, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ideaharvest_test_total 1")
}

func TestStartAndShutdown(t *testing.T) {
	srv := NewServer("127.0.0.1:0", storemem.NewIdeaStore(), prometheus.NewRegistry(), nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

var _ ideas.Store = (*downStore)(nil)
