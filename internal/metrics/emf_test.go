package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	functionName = "catalog-scheduler"
	defer func() { functionName = "" }()

	r := New(Namespace)
	if r.namespace != Namespace {
		t.Errorf("expected namespace %s, got %s", Namespace, r.namespace)
	}
	if r.dimensions["FunctionName"] != "catalog-scheduler" {
		t.Errorf("expected FunctionName dimension, got %q", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	initOnce.Do(func() {})
	functionName = ""

	var buf bytes.Buffer
	rec := New(Namespace).WithWriter(&buf)
	rec.Dimension("Flow", "publish")
	rec.Metric("RunDurationMs", 1234.5, UnitMilliseconds)
	rec.Count("Published")
	rec.Count("Published")
	rec.Add("Failed", 3)
	rec.Property("runId", "abc-123")
	rec.Flush()

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("EMF output must be a single line, got %q", output)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]any)
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]any)
	if !ok || len(cwArr) != 1 {
		t.Fatal("CloudWatchMetrics should hold one entry")
	}
	cw := cwArr[0].(map[string]any)
	if cw["Namespace"] != Namespace {
		t.Errorf("unexpected namespace: %v", cw["Namespace"])
	}
	if len(cw["Metrics"].([]any)) != 3 {
		t.Errorf("expected 3 metric definitions, got %v", cw["Metrics"])
	}

	if doc["Flow"] != "publish" {
		t.Errorf("expected Flow dimension value, got %v", doc["Flow"])
	}
	if doc["Published"] != 2.0 {
		t.Errorf("expected Published=2, got %v", doc["Published"])
	}
	if doc["Failed"] != 3.0 {
		t.Errorf("expected Failed=3, got %v", doc["Failed"])
	}
	if doc["runId"] != "abc-123" {
		t.Errorf("expected runId property, got %v", doc["runId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	New(Namespace).WithWriter(&buf).Dimension("Flow", "x").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output without metrics, got %q", buf.String())
	}
}
