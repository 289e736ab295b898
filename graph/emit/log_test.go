package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitter_TextModeContainsFields(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)

	e.Emit(Event{RunID: "run-001", Step: 1, NodeID: "testNode", Msg: "node_start", Meta: map[string]interface{}{"key": "value"}})

	out := buf.String()
	for _, want := range []string{"run-001", "testNode", "node_start", "key"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestLogEmitter_JSONModeProducesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{RunID: "run-001", Step: 2, NodeID: "jsonNode", Msg: "node_end", Meta: map[string]interface{}{"counter": 42}})

	var parsed map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("expected valid JSON, got %v\noutput: %s", err, buf.String())
	}
	if parsed["runID"] != "run-001" || parsed["nodeID"] != "jsonNode" || parsed["msg"] != "node_end" {
		t.Errorf("unexpected decoded event: %+v", parsed)
	}
	meta, ok := parsed["meta"].(map[string]interface{})
	if !ok || meta["counter"] != float64(42) {
		t.Errorf("expected meta.counter=42, got %+v", parsed["meta"])
	}
}

func TestLogEmitter_EmitBatchWritesEachEventInOrder(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	events := []Event{{RunID: "r", Step: 0, Msg: "node_start"}, {RunID: "r", Step: 0, Msg: "node_end"}}
	if err := e.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	for i, line := range lines {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			t.Errorf("line %d not valid JSON: %v", i, err)
		}
		if parsed["msg"] != events[i].Msg {
			t.Errorf("line %d: expected msg %q, got %v", i, events[i].Msg, parsed["msg"])
		}
	}
}

func TestLogEmitter_FlushIsANoOp(t *testing.T) {
	e := NewLogEmitter(&bytes.Buffer{}, false)
	if err := e.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestLogEmitter_NilWriterDefaultsToStdout(t *testing.T) {
	e := NewLogEmitter(nil, false)
	if e.writer == nil {
		t.Fatal("expected a non-nil default writer")
	}
}

func TestLogEmitter_ImplementsEmitter(t *testing.T) {
	var _ Emitter = NewLogEmitter(&bytes.Buffer{}, false)
}
