package telemetry

import "testing"

func TestRecordActionAndDaily(t *testing.T) {
	tel := New()
	tel.RecordAction("BLOCK")
	tel.RecordAction("BLOCK")
	tel.RecordAction("ALLOW")

	counts := tel.Daily24h()
	if counts["BLOCK"] != 2 {
		t.Errorf("expected 2 BLOCKs, got %d", counts["BLOCK"])
	}
	if counts["ALLOW"] != 1 {
		t.Errorf("expected 1 ALLOW, got %d", counts["ALLOW"])
	}
}

func TestHandlerNotNil(t *testing.T) {
	tel := New()
	if tel.Handler() == nil {
		t.Errorf("expected a non-nil metrics handler")
	}
}
