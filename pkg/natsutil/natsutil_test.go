package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestCarrierRoundTrip(t *testing.T) {
	msg := &nats.Msg{Subject: "test"}
	c := (*natsHeaderCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Fatalf("empty carrier returned %q", got)
	}
	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("get = %q", got)
	}

	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "Traceparent" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestCarrierSetInitializesHeader(t *testing.T) {
	msg := &nats.Msg{}
	c := (*natsHeaderCarrier)(msg)
	c.Set("k", "v")
	if msg.Header == nil || msg.Header.Get("k") != "v" {
		t.Fatalf("header = %v", msg.Header)
	}
}
