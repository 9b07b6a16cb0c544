package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimplan/internal/plan"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveLevels(t *testing.T) {
	m := New()
	m.ObserveLevels(map[string]plan.Level{
		"kitchen": {Value: 42.5, OK: true},
		"hall":    {Value: 10, OK: true, Pinned: true},
		"empty":   {},
	})

	out := scrape(t, m)
	assert.Contains(t, out, `dimplan_channel_level_percent{channel="kitchen"} 42.5`)
	assert.Contains(t, out, `dimplan_channel_pinned{channel="hall"} 1`)
	assert.Contains(t, out, `dimplan_channel_pinned{channel="empty"} 0`)
	assert.NotContains(t, out, `dimplan_channel_level_percent{channel="empty"}`)
	assert.Contains(t, out, "dimplan_evaluations_total 1")

	// a removed channel disappears on the next evaluation
	m.ObserveLevels(map[string]plan.Level{"hall": {Value: 11, OK: true}})
	out = scrape(t, m)
	assert.NotContains(t, out, `channel="kitchen"`)
	assert.Contains(t, out, "dimplan_evaluations_total 2")
}

func TestObserveHueUpdate(t *testing.T) {
	m := New()
	m.ObserveHueUpdate("light", nil)
	m.ObserveHueUpdate("group", errors.New("unreachable"))

	out := scrape(t, m)
	assert.Contains(t, out, `dimplan_hue_updates_total{kind="light",result="ok"} 1`)
	assert.Contains(t, out, `dimplan_hue_updates_total{kind="group",result="error"} 1`)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/channels/0x20", nil))

	out := scrape(t, m)
	assert.Contains(t, out, `dimplan_api_requests_total{endpoint="/channels/{id}",method="GET",status="418"} 1`)
}
