// Package sampler implements the pass/drop predicate described in spec
// §4.C: given a message, decide whether to forward it and attach sampling
// metadata to events that pass. It is a pluggable contract (the Sampler
// interface) with a default ratio+rule-based implementation.
package sampler

import (
	"regexp"

	"github.com/cespare/xxhash/v2"

	"github.com/discourse/mobystash/pkg/value"
)

// Sampler is the black-box predicate spec §4.C describes: given a message,
// return whether it passed and, if so, metadata to merge into the event.
// When passed is false the caller must discard the message without
// incrementing any "sent" counters.
type Sampler interface {
	Sample(message string) (passed bool, metadata *value.Map)
}

// AlwaysPass is the trivial sampler used when no sampling configuration is
// present: every message passes with empty metadata.
type AlwaysPass struct{}

func (AlwaysPass) Sample(string) (bool, *value.Map) { return true, nil }

// Rule applies ratio to messages matching Pattern; the first matching rule
// in a Config wins.
type Rule struct {
	Pattern *regexp.Regexp
	Ratio   float64
}

// Config is the default sampler: a base ratio applied to every message,
// overridden per-message by the first matching Rule.
type Config struct {
	BaseRatio float64
	Rules     []Rule
}

type ratioSampler struct {
	cfg Config
}

// New builds the default ratio+rule sampler described in SPEC_FULL.md §10:
// sampling decisions are made deterministically from a fast hash of the
// message (xxhash) rather than math/rand, so the same message content
// always samples the same way regardless of call order — useful for
// reproducing a drop decision when debugging.
func New(cfg Config) Sampler {
	return &ratioSampler{cfg: cfg}
}

func (r *ratioSampler) Sample(message string) (bool, *value.Map) {
	ratio := r.cfg.BaseRatio
	for _, rule := range r.cfg.Rules {
		if rule.Pattern.MatchString(message) {
			ratio = rule.Ratio
			break
		}
	}

	if ratio >= 1 {
		return true, passMetadata(ratio)
	}
	if ratio <= 0 {
		return false, nil
	}

	h := xxhash.Sum64String(message)
	// Map the hash into [0,1) uniformly and compare against ratio.
	frac := float64(h) / float64(^uint64(0))
	if frac < ratio {
		return true, passMetadata(ratio)
	}
	return false, nil
}

func passMetadata(ratio float64) *value.Map {
	m := value.NewMap()
	m.Set("sample_ratio", ratio)
	return m
}
