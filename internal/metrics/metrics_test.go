package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// gaugeValue finds the gauge called name whose labels include want.
func gaugeValue(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, want) {
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func sampleManifest() domain.RunManifest {
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return domain.RunManifest{
		RunID:              "run-1",
		Status:             domain.RunStatusCompleted,
		StartTS:            start,
		EndTS:              start.Add(90 * time.Second),
		DurationSeconds:    90,
		Date:               "2026-03-01",
		MarketsTotal:       12,
		MarketsWithTokens:  10,
		TokensTotal:        20,
		TokensPricedOK:     17,
		TokensMissingPrice: 2,
		APIErrors:          1,
		PriceBatches:       3,
	}
}

func TestObserveManifest(t *testing.T) {
	m := New("")
	m.ObserveManifest(sampleManifest())

	assert.Equal(t, 12.0, gaugeValue(t, m, "pmuniverse_run_markets", map[string]string{"kind": "total"}))
	assert.Equal(t, 10.0, gaugeValue(t, m, "pmuniverse_run_markets", map[string]string{"kind": "with_tokens"}))
	assert.Equal(t, 17.0, gaugeValue(t, m, "pmuniverse_run_tokens", map[string]string{"status": "ok"}))
	assert.Equal(t, 2.0, gaugeValue(t, m, "pmuniverse_run_tokens", map[string]string{"status": "missing_price"}))
	assert.Equal(t, 1.0, gaugeValue(t, m, "pmuniverse_run_tokens", map[string]string{"status": "api_error"}))
	assert.Equal(t, 3.0, gaugeValue(t, m, "pmuniverse_run_price_batches", nil))
	assert.Equal(t, 90.0, gaugeValue(t, m, "pmuniverse_run_duration_seconds", nil))
	assert.Equal(t, 1.0, gaugeValue(t, m, "pmuniverse_run_status", map[string]string{"status": "completed"}))
	assert.Equal(t, 0.0, gaugeValue(t, m, "pmuniverse_run_status", map[string]string{"status": "failed"}))

	wantEnd := float64(time.Date(2026, 3, 1, 9, 31, 30, 0, time.UTC).Unix())
	assert.Equal(t, wantEnd, gaugeValue(t, m, "pmuniverse_run_last_end_timestamp", nil))
}

func TestObserveManifestStatusFlips(t *testing.T) {
	m := New("")
	man := sampleManifest()
	m.ObserveManifest(man)

	man.Status = domain.RunStatusFailed
	m.ObserveManifest(man)

	assert.Equal(t, 0.0, gaugeValue(t, m, "pmuniverse_run_status", map[string]string{"status": "completed"}))
	assert.Equal(t, 1.0, gaugeValue(t, m, "pmuniverse_run_status", map[string]string{"status": "failed"}))
}

func TestTransportCountsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	m := New("test")
	client := &http.Client{Transport: m.Transport("gamma")()}

	for _, path := range []string{"/a", "/b", "/missing"} {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	mfs, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	var observed uint64
	for _, mf := range mfs {
		switch mf.GetName() {
		case "test_http_requests_total":
			for _, metric := range mf.GetMetric() {
				require.True(t, labelsMatch(metric, map[string]string{"service": "gamma", "method": "get"}))
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "code" {
						counts[lp.GetValue()] = metric.GetCounter().GetValue()
					}
				}
			}
		case "test_http_request_duration_seconds":
			for _, metric := range mf.GetMetric() {
				observed += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]float64{"200": 2, "404": 1}, counts)
	assert.Equal(t, uint64(3), observed)
}

func TestPusherPublish(t *testing.T) {
	var (
		calls  atomic.Int32
		path   atomic.Value
		method atomic.Value
		body   atomic.Value
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path.Store(r.URL.Path)
		method.Store(r.Method)
		b, _ := io.ReadAll(r.Body)
		body.Store(len(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := New("")
	p := NewPusher(m, gw.URL, "pmuniverse", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "pushgateway", p.Name())

	err := p.Publish(context.Background(), domain.Snapshot{Manifest: sampleManifest()})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.MethodPut, method.Load())
	assert.True(t, strings.HasPrefix(path.Load().(string), "/metrics/job/pmuniverse"))
	assert.Positive(t, body.Load().(int))
	assert.Equal(t, 17.0, gaugeValue(t, m, "pmuniverse_run_tokens", map[string]string{"status": "ok"}))
}

func TestPusherPublishError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gw.Close()

	p := NewPusher(New(""), gw.URL, "pmuniverse", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.Publish(context.Background(), domain.Snapshot{Manifest: sampleManifest()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: push to")
}
