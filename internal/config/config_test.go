package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sitepulse/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SITEPULSE_BACKEND_URL", "https://backend.example/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendBaseURL != "https://backend.example" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BackendBaseURL)
	}
	if cfg.StreamMode != StreamModeNone || cfg.PollInterval != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Targets) != 4 {
		t.Fatalf("expected 4 built-in targets, got %d", len(cfg.Targets))
	}
	pt, err := cfg.Targets[1].PollTarget()
	if err != nil {
		t.Fatalf("poll target: %v", err)
	}
	if pt.LiveURL != "https://backend.example/api/members" || pt.Default != int64(41) {
		t.Fatalf("unexpected member target %+v", pt)
	}
	if rt, ok := cfg.ReviewsTarget(); !ok || rt.ID != "reviews-grid" {
		t.Fatalf("expected reviews target, got %+v", rt)
	}
}

func TestLoadRejectsUnknownStreamMode(t *testing.T) {
	t.Setenv("SITEPULSE_STREAM_MODE", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected unsupported stream mode error")
	}
}

func TestLoadTargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	body := `
interval: 15s
targets:
  - id: member-count
    kind: count
    live_url: https://backend.example/api/members
    snapshot_path: members.json
    default: 41
  - id: live-status
    kind: status
    live_url: https://backend.example/api/live-status
    interval: 1m
    default:
      emoji: "🔴"
      color: red
      text: Offline
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write targets: %v", err)
	}
	t.Setenv("SITEPULSE_TARGETS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Targets))
	}
	if cfg.Targets[0].Interval != 15*time.Second || cfg.Targets[1].Interval != time.Minute {
		t.Fatalf("unexpected intervals %v %v", cfg.Targets[0].Interval, cfg.Targets[1].Interval)
	}
	def, err := cfg.Targets[1].DefaultValue()
	if err != nil {
		t.Fatalf("default value: %v", err)
	}
	if st := def.(model.LiveStatus); st.Text != "Offline" || st.Color != "red" {
		t.Fatalf("unexpected status default %+v", st)
	}
}

func TestParseTargetsValidation(t *testing.T) {
	targets, err := ParseTargets([]byte(`
targets:
  - id: member-count
    kind: count
    live_url: https://backend.example/api/members
    default: forty-one
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := targets[0].Validate(); err == nil {
		t.Fatalf("expected non-integer default to fail validation")
	}

	cfg := Config{Targets: []TargetSpec{{ID: "x", Kind: "captcha", LiveURL: "u"}}}
	if err := cfg.Targets[0].Validate(); err == nil {
		t.Fatalf("expected unsupported kind to fail")
	}
}

func TestStatusDefaultWhenOmitted(t *testing.T) {
	spec := TargetSpec{ID: "live-status", Kind: model.KindStatus, LiveURL: "u"}
	def, err := spec.DefaultValue()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def.(model.LiveStatus) != model.DefaultLiveStatus() {
		t.Fatalf("expected built-in status default, got %+v", def)
	}
}
