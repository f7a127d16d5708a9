package shotstore

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"testing"
)

func TestBackfillBeverageTypeParsesProfileJSON(t *testing.T) {
	path, cleanup := openTestDB(t)
	defer cleanup()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT INTO shots (uuid, timestamp, profile_json) VALUES (?, ?, ?)`,
		"u1", 1000, `{"name":"Steam","beverage_type":"steam"}`)
	if err != nil {
		t.Fatalf("insert shot: %v", err)
	}

	if err := backfillBeverageType(db); err != nil {
		t.Fatalf("backfillBeverageType: %v", err)
	}

	var beverageType string
	err = db.QueryRow(`SELECT beverage_type FROM shots WHERE uuid = ?`, "u1").Scan(&beverageType)
	if err != nil {
		t.Fatalf("query beverage_type: %v", err)
	}
	if beverageType != "steam" {
		t.Errorf("beverage_type = %q, want %q", beverageType, "steam")
	}
}

func TestCenteredMovingAverageSmoothsInterior(t *testing.T) {
	v := []float64{0, 0, 0, 0, 0, 10, 0, 0, 0, 0, 0}
	out := centeredMovingAverage(v, 5)
	// The single spike at index 5 should be smeared across the full 11-point window.
	want := 10.0 / 11.0
	if out[5] < want-0.001 || out[5] > want+0.001 {
		t.Errorf("out[5] = %v, want ~%v", out[5], want)
	}
	if len(out) != len(v) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(v))
	}
}

func TestSmoothWeightFlowBlobRoundTrips(t *testing.T) {
	channels := sampleChannels{
		"smoothed weight flow rate": {
			T: []float64{0, 1, 2, 3},
			V: []float64{1, 2, 3, 4},
		},
	}
	raw, err := json.Marshal(channels)
	if err != nil {
		t.Fatalf("marshal channels: %v", err)
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	w.Close()

	smoothed, changed, err := smoothWeightFlowBlob(buf.Bytes())
	if err != nil {
		t.Fatalf("smoothWeightFlowBlob: %v", err)
	}
	if !changed {
		t.Fatal("expected channel to be smoothed")
	}

	decompressed, err := decompressBlob(smoothed)
	if err != nil {
		t.Fatalf("decompressBlob: %v", err)
	}
	var out sampleChannels
	if err := json.Unmarshal(decompressed, &out); err != nil {
		t.Fatalf("unmarshal smoothed channels: %v", err)
	}
	if len(out["smoothed weight flow rate"].V) != 4 {
		t.Errorf("expected 4 smoothed values, got %d", len(out["smoothed weight flow rate"].V))
	}
}

func TestSmoothWeightFlowBlobSkipsMissingChannel(t *testing.T) {
	channels := sampleChannels{"group pressure": {T: []float64{0}, V: []float64{1}}}
	raw, _ := json.Marshal(channels)

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(raw)
	w.Close()

	_, changed, err := smoothWeightFlowBlob(buf.Bytes())
	if err != nil {
		t.Fatalf("smoothWeightFlowBlob: %v", err)
	}
	if changed {
		t.Error("expected no change when target channel is absent")
	}
}
