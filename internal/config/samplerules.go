package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// sampleRuleFile is the on-disk shape of MOBYSTASH_SAMPLE_RULES_FILE: a
// YAML list, richer than the env var's flat "pattern=ratio" form since a
// file isn't constrained to a single shell-safe line.
type sampleRuleFile struct {
	Rules []struct {
		Pattern string  `yaml:"pattern"`
		Ratio   float64 `yaml:"ratio"`
	} `yaml:"rules"`
}

// LoadSampleRulesFile parses path into a []SampleRule. An empty path is not
// an error and yields no rules.
func LoadSampleRulesFile(path string) ([]SampleRule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read sample rules file %s: %w", path, err)
	}

	var parsed sampleRuleFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse sample rules file %s: %w", path, err)
	}

	rules := make([]SampleRule, 0, len(parsed.Rules))
	for _, r := range parsed.Rules {
		if r.Ratio < 0 || r.Ratio > 1 {
			return nil, fmt.Errorf("config: sample rules file %s: rule %q has ratio %v outside [0, 1]", path, r.Pattern, r.Ratio)
		}
		rules = append(rules, SampleRule{Pattern: r.Pattern, Ratio: r.Ratio})
	}
	return rules, nil
}

// WatchSampleRulesFile watches path for changes and invokes onReload with
// the freshly parsed rule list each time it changes, until ctx is done. A
// parse error on reload is logged and the previous rules are kept in
// effect by the caller (onReload is simply not invoked).
func WatchSampleRulesFile(ctx context.Context, path string, logger *logrus.Logger, onReload func([]SampleRule)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()

		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		pending := false

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(200 * time.Millisecond)
				pending = true
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("config: sample rules file watcher error")
			case <-debounce.C:
				if !pending {
					continue
				}
				pending = false
				rules, err := LoadSampleRulesFile(path)
				if err != nil {
					logger.WithError(err).Warn("config: failed to reload sample rules file, keeping previous rules")
					continue
				}
				onReload(rules)
			}
		}
	}()

	return nil
}
