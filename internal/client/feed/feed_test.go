package feed

import (
	"encoding/json"
	"sort"
	"testing"
	"time"
)

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	b := nextBackoff(1*time.Second, 30*time.Second)
	if b != 2*time.Second {
		t.Fatalf("backoff=%v want=2s", b)
	}
	b = nextBackoff(20*time.Second, 30*time.Second)
	if b != 30*time.Second {
		t.Fatalf("backoff=%v want=30s cap", b)
	}
}

func TestSetFromSlice_NormalizesSymbols(t *testing.T) {
	set := setFromSlice([]string{" aapl ", "MSFT", "", "msft"})
	if len(set) != 2 {
		t.Fatalf("len=%d want=2", len(set))
	}
	if _, ok := set["AAPL"]; !ok {
		t.Fatalf("AAPL missing from %v", set)
	}
	if _, ok := set["MSFT"]; !ok {
		t.Fatalf("MSFT missing from %v", set)
	}
}

func TestDiffSets(t *testing.T) {
	current := setFromSlice([]string{"AAPL", "MSFT"})
	next := setFromSlice([]string{"MSFT", "TSLA"})
	added, removed := diffSets(current, next)
	sort.Strings(added)
	sort.Strings(removed)
	if len(added) != 1 || added[0] != "TSLA" {
		t.Fatalf("added=%v want=[TSLA]", added)
	}
	if len(removed) != 1 || removed[0] != "AAPL" {
		t.Fatalf("removed=%v want=[AAPL]", removed)
	}
}

func TestIsPingPayload(t *testing.T) {
	if !isPingPayload(Envelope{Type: "PING"}, nil) {
		t.Fatalf("typed ping not detected")
	}
	if !isPingPayload(Envelope{}, []byte(" ping\n")) {
		t.Fatalf("bare ping not detected")
	}
	if isPingPayload(Envelope{Type: "quote"}, []byte(`{"type":"quote"}`)) {
		t.Fatalf("quote misread as ping")
	}
}

func TestEnvelopeDecode(t *testing.T) {
	raw := []byte(`{"type":"quote","symbol":"AAPL","last":190.5,"ts":"2025-06-02T14:30:00Z"}`)
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "quote" || env.Symbol != "AAPL" {
		t.Fatalf("env=%+v", env)
	}
}

func TestSubscribeRequestShape(t *testing.T) {
	b, err := json.Marshal(SubscribeRequest{Type: "subscribe", Symbols: []string{"AAPL"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"subscribe","symbols":["AAPL"]}`
	if string(b) != want {
		t.Fatalf("payload=%s want=%s", b, want)
	}
}
