package queue

import (
	"encoding/json"
	"testing"
)

type samplePayload struct {
	Strategy string  `json:"strategy_id"`
	Return   float64 `json:"actual_return"`
}

func TestParsePayload(t *testing.T) {
	want := samplePayload{Strategy: "strat-a", Return: 0.01}

	tests := []struct {
		name    string
		payload interface{}
	}{
		{"pointer", &samplePayload{Strategy: "strat-a", Return: 0.01}},
		{"value", samplePayload{Strategy: "strat-a", Return: 0.01}},
		{"generic map", map[string]interface{}{"strategy_id": "strat-a", "actual_return": 0.01}},
		{"raw json", json.RawMessage(`{"strategy_id":"strat-a","actual_return":0.01}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload[samplePayload](tt.payload)
			if err != nil {
				t.Fatalf("ParsePayload: %v", err)
			}
			if *got != want {
				t.Fatalf("got %+v, want %+v", *got, want)
			}
		})
	}
}

func TestParsePayloadRejectsUnknownShape(t *testing.T) {
	if _, err := ParsePayload[samplePayload](42); err == nil {
		t.Fatal("expected error for unsupported payload type")
	}
}
