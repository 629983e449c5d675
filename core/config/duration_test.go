package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tailored-agentic-units/polyglot/core/config"
)

func TestDuration_JSON(t *testing.T) {
	var got struct {
		Timeout config.Duration `json:"timeout"`
	}
	if err := json.Unmarshal([]byte(`{"timeout":"1m30s"}`), &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Timeout.Std() != 90*time.Second {
		t.Errorf("got %v, want 1m30s", got.Timeout)
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"timeout":"1m30s"}` {
		t.Errorf("got %s", data)
	}
}

func TestDuration_Invalid(t *testing.T) {
	var d config.Duration
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}
}
