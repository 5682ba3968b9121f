package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"
)

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer
	rec := NewWithWriter(Namespace, &buf)
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }

	rec.Dimension("Outcome", "Completed")
	rec.Duration("ProcessingMs", 1500*time.Millisecond)
	rec.Metric("PollCount", 3, UnitCount)
	rec.Property("videoId", "vid-1")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, buf.String())
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if awsMap["Timestamp"] != float64(1700000000000) {
		t.Errorf("unexpected Timestamp: %v", awsMap["Timestamp"])
	}

	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "VideoAnalysis" {
		t.Errorf("expected namespace VideoAnalysis, got %v", cw["Namespace"])
	}

	metricsArr := cw["Metrics"].([]interface{})
	if len(metricsArr) != 2 {
		t.Fatalf("expected 2 metric definitions, got %d", len(metricsArr))
	}
	first := metricsArr[0].(map[string]interface{})
	if first["Name"] != "PollCount" || first["Unit"] != UnitCount {
		t.Errorf("metric definitions should be sorted by name, got %v", first)
	}

	if doc["Outcome"] != "Completed" {
		t.Errorf("expected Outcome=Completed, got %v", doc["Outcome"])
	}
	if doc["ProcessingMs"] != float64(1500) {
		t.Errorf("expected ProcessingMs=1500, got %v", doc["ProcessingMs"])
	}
	if doc["PollCount"] != float64(3) {
		t.Errorf("expected PollCount=3, got %v", doc["PollCount"])
	}
	if doc["videoId"] != "vid-1" {
		t.Errorf("expected videoId=vid-1, got %v", doc["videoId"])
	}
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Error("EMF document must be a single line")
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("Test", &buf).Dimension("Outcome", "Failed").Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Count(t *testing.T) {
	rec := NewWithWriter("Test", io.Discard)
	rec.Count("Errors")

	if v, ok := rec.values["Errors"]; !ok || v != float64(1) {
		t.Errorf("expected Errors=1, got %v", v)
	}
	if m, ok := rec.metrics["Errors"]; !ok || m.Unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.Unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := NewWithWriter("Test", io.Discard).
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}
