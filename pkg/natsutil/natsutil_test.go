package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{Subject: "test"}
	c := (*natsHeaderCarrier)(msg)

	if c.Get("traceparent") != "" {
		t.Error("empty carrier should return empty value")
	}
	if c.Keys() != nil {
		t.Error("empty carrier should have no keys")
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("got %q", got)
	}
	if msg.Header.Get("traceparent") != "00-abc-def-01" {
		t.Error("carrier did not write through to message headers")
	}
	if keys := c.Keys(); len(keys) != 1 {
		t.Errorf("keys = %v", keys)
	}
}
