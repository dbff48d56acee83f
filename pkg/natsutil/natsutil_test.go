package natsutil

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
)

type reindexEvent struct {
	Seeded int    `json:"seeded"`
	Source string `json:"source"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}

	keys := carrier.Keys()
	if len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := reindexEvent{Seeded: 12, Source: "products.json"}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	var decoded reindexEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Seeded != 12 || decoded.Source != "products.json" {
		t.Fatalf("unexpected: %+v", decoded)
	}
}
