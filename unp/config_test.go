package unp

import (
	"testing"

	"github.com/unprotocol/unp/serializer"
	"github.com/unprotocol/unp/wire"
)

func TestConfigParamsForFallsBackToGlobal(t *testing.T) {
	cfg := defaultConfig()
	WithBinaryDataParams(serializer.Params{TagName: "global"}, nil)(&cfg)

	got := cfg.paramsFor(wire.TypeCommand, "ping")
	if got.TagName != "global" {
		t.Fatalf("want global tag, got %q", got.TagName)
	}
}

func TestConfigParamsForPrefersPerCommandOverride(t *testing.T) {
	cfg := defaultConfig()
	WithBinaryDataParams(serializer.Params{TagName: "global"}, map[string]serializer.Params{
		"Cping": {TagName: "ping-specific"},
	})(&cfg)

	got := cfg.paramsFor(wire.TypeCommand, "ping")
	if got.TagName != "ping-specific" {
		t.Fatalf("want per-command override, got %q", got.TagName)
	}

	other := cfg.paramsFor(wire.TypeQuery, "stat")
	if other.TagName != "global" {
		t.Fatalf("want global fallback for uncovered key, got %q", other.TagName)
	}
}
