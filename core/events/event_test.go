package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"refdrop/observability/logging"
)

func TestLogEmitterWritesSortedAttributes(t *testing.T) {
	var buf bytes.Buffer
	emitter := LogEmitter{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	emitter.Emit(AirdropRewardQueued{Index: 3, Address: "0xaa", Amount: 100, Reason: RewardReasonReferral})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["event"] != TypeAirdropRewardQueued {
		t.Fatalf("unexpected event attr: %v", line["event"])
	}
	if line["index"] != "3" || line["amount"] != "100" || line["reason"] != RewardReasonReferral {
		t.Fatalf("unexpected attrs: %+v", line)
	}
}

func TestRecorderFiltersByType(t *testing.T) {
	rec := &Recorder{}
	Multi{rec, nil, NoopEmitter{}}.Emit(AirdropEmergencyStop{Admin: "root", Engaged: true})
	rec.Emit(AirdropCodesAdded{Added: 2, Remaining: 2})

	if got := len(rec.Events()); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	stops := rec.OfType(TypeAirdropEmergencyStop)
	if len(stops) != 1 {
		t.Fatalf("expected 1 stop event, got %d", len(stops))
	}
	if attrs := stops[0].(Attributed).Attributes(); attrs["engaged"] != "true" {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}
}

func TestRoleGrantedOmitsEmptyName(t *testing.T) {
	attrs := AirdropRoleGranted{Admin: "root", Principal: "p", Role: "admin"}.Attributes()
	if _, ok := attrs["name"]; ok {
		t.Fatalf("name should be omitted: %+v", attrs)
	}
}

func TestLogEmitterMasksCodes(t *testing.T) {
	var buf bytes.Buffer
	emitter := LogEmitter{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	emitter.Emit(AirdropCodeGenerated{Manager: "mgr", Code: "ROOT-1"})

	if bytes.Contains(buf.Bytes(), []byte("ROOT-1")) {
		t.Fatalf("code leaked into log: %s", buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["code"] != logging.RedactedValue || line["manager"] != "mgr" {
		t.Fatalf("unexpected attrs: %+v", line)
	}

	evt := AirdropCodeGenerated{Manager: "mgr", Code: "ROOT-1"}
	if evt.Attributes()["code"] != "ROOT-1" {
		t.Fatalf("attributes should keep the code for in-process consumers")
	}
}
