package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/mnemosyne/internal/engine"
	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// Policy is the optional YAML tuning file. Every section is optional; an
// empty policy changes nothing. Unknown keys are rejected so a typo fails
// at load rather than silently keeping a default.
type Policy struct {
	// RetentionDays overrides the decay retention table per memory type.
	// The key "default" changes the fallback applied to unknown types.
	RetentionDays map[string]float64 `yaml:"retention_days"`

	// ProtectedTags replaces the built-in protected-tag list for every
	// forgetting horizon. An explicitly empty list disables protection.
	ProtectedTags []string `yaml:"protected_tags"`

	// Horizons overrides profile tunables per horizon name.
	Horizons map[string]HorizonTuning `yaml:"horizons"`
}

// HorizonTuning overrides individual fields of one horizon profile. Pointer
// fields distinguish "not set" from an explicit zero, which matters because
// zero legitimately disables association discovery and clustering.
type HorizonTuning struct {
	Interval         string        `yaml:"interval"`
	Scope            string        `yaml:"scope"`
	BatchLimit       *int          `yaml:"batch_limit"`
	MaxPairs         *int          `yaml:"max_pairs"`
	MinSimilarity    *float64      `yaml:"min_similarity"`
	MaxSimilarity    *float64      `yaml:"max_similarity"`
	ClusterThreshold *float64      `yaml:"cluster_threshold"`
	MinClusterSize   *int          `yaml:"min_cluster_size"`
	TopKeywords      *int          `yaml:"top_keywords"`
	Forgetting       *ForgetTuning `yaml:"forgetting"`
}

// ForgetTuning overrides the forgetting policy of one horizon. Setting
// enabled to false removes forgetting from the horizon entirely; enabling
// it on a horizon that has no defaults requires both thresholds.
type ForgetTuning struct {
	Enabled             *bool   `yaml:"enabled"`
	RelevanceThreshold  float64 `yaml:"relevance_threshold"`
	AccessThresholdDays float64 `yaml:"access_threshold_days"`
}

// LoadPolicy reads and validates a policy file. The returned policy is
// guaranteed to produce a valid profile set; callers can use Profiles and
// RetentionOverrides without re-checking.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &Policy{}, nil
		}
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.Profiles(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the sections that profile merging cannot: retention keys
// and values, and horizon names. Everything tunable per horizon is checked
// by the merged profile's own validation in Profiles.
func (p *Policy) Validate() error {
	for key, days := range p.RetentionDays {
		t := types.MemoryType(key)
		if t != engine.RetentionDefaultKey && !types.IsValidMemoryType(t) {
			return fmt.Errorf("policy: unknown memory type %q in retention_days", key)
		}
		if days <= 0 {
			return fmt.Errorf("policy: retention for %q must be positive, got %g", key, days)
		}
	}
	for name := range p.Horizons {
		if _, err := types.ParseHorizon(name); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// RetentionOverrides converts the retention section into the decay
// calculator's override map. A nil policy yields no overrides.
func (p *Policy) RetentionOverrides() map[types.MemoryType]float64 {
	if p == nil || len(p.RetentionDays) == 0 {
		return nil
	}
	overrides := make(map[types.MemoryType]float64, len(p.RetentionDays))
	for key, days := range p.RetentionDays {
		overrides[types.MemoryType(key)] = days
	}
	return overrides
}

// Profiles returns the default horizon ladder with this policy's overrides
// applied and validated. A nil policy yields the defaults unchanged.
func (p *Policy) Profiles() ([]engine.HorizonProfile, error) {
	profiles := engine.DefaultProfiles()
	if p == nil {
		return profiles, nil
	}

	for i := range profiles {
		prof := &profiles[i]
		if tuning, ok := p.Horizons[string(prof.Horizon)]; ok {
			if err := applyTuning(prof, tuning); err != nil {
				return nil, fmt.Errorf("policy: horizon %s: %w", prof.Horizon, err)
			}
		}
		if p.ProtectedTags != nil && prof.Forget != nil {
			prof.Forget.ProtectedTags = append([]string(nil), p.ProtectedTags...)
		}
		prof.Normalize()
		if err := prof.Validate(); err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
	}
	return profiles, nil
}

func applyTuning(prof *engine.HorizonProfile, t HorizonTuning) error {
	if t.Interval != "" {
		d, err := parseInterval(t.Interval)
		if err != nil {
			return err
		}
		prof.Interval = d
	}
	if t.Scope != "" {
		switch t.Scope {
		case string(storage.ScopeRecent):
			prof.Scope = storage.ScopeRecent
		case string(storage.ScopeAll):
			prof.Scope = storage.ScopeAll
		default:
			return fmt.Errorf("unknown scope %q (have: recent, all)", t.Scope)
		}
	}
	if t.BatchLimit != nil {
		prof.BatchLimit = *t.BatchLimit
	}
	if t.MaxPairs != nil {
		prof.MaxPairs = *t.MaxPairs
	}
	if t.MinSimilarity != nil {
		prof.MinSimilarity = *t.MinSimilarity
	}
	if t.MaxSimilarity != nil {
		prof.MaxSimilarity = *t.MaxSimilarity
	}
	if t.ClusterThreshold != nil {
		prof.ClusterThreshold = *t.ClusterThreshold
	}
	if t.MinClusterSize != nil {
		prof.MinClusterSize = *t.MinClusterSize
	}
	if t.TopKeywords != nil {
		prof.TopKeywords = *t.TopKeywords
	}
	if t.Forgetting != nil {
		if t.Forgetting.Enabled != nil && !*t.Forgetting.Enabled {
			prof.Forget = nil
		} else {
			if prof.Forget == nil {
				prof.Forget = &engine.ForgettingPolicy{}
			}
			if t.Forgetting.RelevanceThreshold > 0 {
				prof.Forget.RelevanceThreshold = t.Forgetting.RelevanceThreshold
			}
			if t.Forgetting.AccessThresholdDays > 0 {
				prof.Forget.AccessThresholdDays = t.Forgetting.AccessThresholdDays
			}
		}
	}
	return nil
}

// parseInterval reads a duration that may use a whole-day "d" suffix, which
// time.ParseDuration does not know. "30d" and "720h" are equivalent.
func parseInterval(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %q must be positive", s)
	}
	return d, nil
}
