package graphstore

import (
	"encoding/json"
	"testing"
)

func TestEndpointMissingErrorReportsSideAndNode(t *testing.T) {
	err := &endpointMissingError{EdgeID: "e1", Side: "target", NodeID: "n1"}
	got := err.Error()
	want := "edge e1: target endpoint n1 does not exist"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPropertiesJSONRoundTrips(t *testing.T) {
	props := map[string]any{"content": "hello", "access_count": float64(3)}
	raw := propertiesJSON(props)

	got := unmarshalProperties(raw)
	if got["content"] != "hello" {
		t.Errorf("expected content preserved, got %v", got["content"])
	}
	if got["access_count"] != float64(3) {
		t.Errorf("expected access_count preserved, got %v", got["access_count"])
	}
}

func TestPropertiesJSONFallsBackToEmptyObjectOnUnmarshalableInput(t *testing.T) {
	// channels cannot be marshaled to JSON
	raw := propertiesJSON(map[string]any{"bad": make(chan int)})
	if string(raw) != "{}" {
		t.Errorf("expected empty object fallback, got %s", raw)
	}
}

func TestUnmarshalPropertiesOnInvalidJSONReturnsEmptyMap(t *testing.T) {
	got := unmarshalProperties([]byte("not json"))
	if got == nil {
		t.Fatal("expected non-nil empty map")
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestMarshalPropertiesHandlesNilMap(t *testing.T) {
	raw, err := marshalProperties(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WriterTimeout.Seconds() != 30 {
		t.Errorf("expected 30s writer timeout, got %v", cfg.WriterTimeout)
	}
	if cfg.ColdStartBudget.Seconds() != 3 {
		t.Errorf("expected 3s cold-start budget, got %v", cfg.ColdStartBudget)
	}
	if cfg.WriterQueueDepth != 256 {
		t.Errorf("expected writer queue depth 256, got %d", cfg.WriterQueueDepth)
	}
}
