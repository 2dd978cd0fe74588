package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"mapclient.gnet.app/internal/metrics"
)

func TestNewPooledClientRecordsLatency(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer ts.Close()

	client := NewPooledClient(0)
	if client.Timeout <= 0 {
		t.Fatalf("expected a default timeout, got %s", client.Timeout)
	}

	resp, err := client.Get(ts.URL + "/api/data?_cb=123")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	observer := metrics.OutgoingLatency.WithLabelValues(ts.URL+"/api/data", http.MethodGet, "418")
	m, ok := observer.(prometheus.Metric)
	if !ok {
		t.Fatal("expected histogram observer to be a metric")
	}
	pb := &dto.Metric{}
	if err := m.Write(pb); err != nil {
		t.Fatal(err)
	}
	if got := pb.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("expected one latency sample without the query in its label, got %d", got)
	}
}
