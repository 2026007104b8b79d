package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sitepulse/internal/model"
)

// TargetSpec is one widget target as written in the targets file.
type TargetSpec struct {
	ID           string           `yaml:"id"`
	Kind         model.TargetKind `yaml:"kind"`
	LiveURL      string           `yaml:"live_url"`
	SnapshotPath string           `yaml:"snapshot_path"`
	Interval     time.Duration    `yaml:"interval"`
	Plain        bool             `yaml:"plain"`
	Default      yaml.Node        `yaml:"default"`
}

type targetsFile struct {
	Interval time.Duration `yaml:"interval"`
	Targets  []TargetSpec  `yaml:"targets"`
}

// LoadTargets reads a YAML targets file. A top-level interval applies to
// targets that do not set their own.
func LoadTargets(path string) ([]TargetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return ParseTargets(data)
}

func ParseTargets(data []byte) ([]TargetSpec, error) {
	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	for i := range f.Targets {
		if f.Targets[i].Interval == 0 {
			f.Targets[i].Interval = f.Interval
		}
	}
	return f.Targets, nil
}

// DefaultTargets are the widgets the marketing site ships with.
func DefaultTargets(baseURL string, interval time.Duration) []TargetSpec {
	return []TargetSpec{
		{ID: "config-count", Kind: model.KindCount, LiveURL: baseURL + "/api/configs-count", SnapshotPath: "configs-count.json", Interval: interval, Plain: true, Default: scalarNode("4")},
		{ID: "member-count", Kind: model.KindCount, LiveURL: baseURL + "/api/members", SnapshotPath: "members.json", Interval: interval, Default: scalarNode("41")},
		{ID: "live-status", Kind: model.KindStatus, LiveURL: baseURL + "/api/live-status", SnapshotPath: "live-status.json", Interval: interval},
		{ID: "reviews-grid", Kind: model.KindReviews, LiveURL: baseURL + "/api/reviews", SnapshotPath: "reviews.json", Interval: interval},
	}
}

func (t TargetSpec) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("target id is required")
	}
	switch t.Kind {
	case model.KindCount, model.KindStatus, model.KindReviews:
	default:
		return fmt.Errorf("target %s: unsupported kind %q", t.ID, t.Kind)
	}
	if strings.TrimSpace(t.LiveURL) == "" {
		return fmt.Errorf("target %s: live_url is required", t.ID)
	}
	if t.Interval < 0 {
		return fmt.Errorf("target %s: interval must be >= 0", t.ID)
	}
	if _, err := t.DefaultValue(); err != nil {
		return err
	}
	return nil
}

// DefaultValue decodes the last-resort value for the target's kind. An
// omitted default falls back to the kind's built-in value.
func (t TargetSpec) DefaultValue() (any, error) {
	empty := t.Default.Kind == 0
	switch t.Kind {
	case model.KindCount:
		var n int64
		if !empty {
			if err := t.Default.Decode(&n); err != nil {
				return nil, fmt.Errorf("target %s: default must be an integer: %w", t.ID, err)
			}
		}
		return n, nil
	case model.KindStatus:
		st := model.DefaultLiveStatus()
		if !empty {
			if err := t.Default.Decode(&st); err != nil {
				return nil, fmt.Errorf("target %s: default status: %w", t.ID, err)
			}
		}
		return st, nil
	case model.KindReviews:
		return model.ReviewPage{Reviews: []model.Review{}}, nil
	default:
		return nil, fmt.Errorf("target %s: unsupported kind %q", t.ID, t.Kind)
	}
}

// PollTarget converts the spec into a runtime target without its parser.
func (t TargetSpec) PollTarget() (model.PollTarget, error) {
	def, err := t.DefaultValue()
	if err != nil {
		return model.PollTarget{}, err
	}
	return model.PollTarget{
		ID:           t.ID,
		Kind:         t.Kind,
		LiveURL:      t.LiveURL,
		SnapshotPath: t.SnapshotPath,
		Default:      def,
		Interval:     t.Interval,
	}, nil
}

func scalarNode(v string) yaml.Node {
	return yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: v}
}
