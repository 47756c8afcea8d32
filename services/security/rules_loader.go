package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ruleValidatorOnce sync.Once
	ruleValidator     *validator.Validate
)

func getRuleValidator() *validator.Validate {
	ruleValidatorOnce.Do(func() {
		ruleValidator = validator.New()
		ruleValidator.RegisterValidation("metric_field", func(fl validator.FieldLevel) bool {
			return KnownField(fl.Field().String())
		})
	})
	return ruleValidator
}

type ruleFile struct {
	IncludeBuiltin bool        `yaml:"include_builtin"`
	Rules          []AlertRule `yaml:"rules"`
}

// ValidateRules checks every rule and rejects duplicate ids.
func ValidateRules(rules []AlertRule) error {
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if err := getRuleValidator().Struct(r); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.ID, err)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// ParseRules decodes a YAML rule document. With include_builtin set, file
// rules are merged over the built-in set by id.
func ParseRules(data []byte) ([]AlertRule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := doc.Rules
	if doc.IncludeBuiltin {
		rules = mergeRules(BuiltinRules(), doc.Rules)
	}
	// An empty document is usually a file caught mid-write.
	if len(rules) == 0 {
		return nil, errors.New("rule file defines no rules")
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func LoadRules(path string) ([]AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

func mergeRules(base, overrides []AlertRule) []AlertRule {
	out := make([]AlertRule, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base))
	for _, r := range base {
		index[r.ID] = len(out)
		out = append(out, r)
	}
	for _, r := range overrides {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// RuleWatcher reloads a rule file into a monitor whenever it changes.
// Invalid revisions are logged and the previous rules stay active.
type RuleWatcher struct {
	path    string
	monitor *SuspiciousActivityMonitor
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
}

func WatchRules(path string, monitor *SuspiciousActivityMonitor, logger zerolog.Logger) (*RuleWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and config mounts replace the file rather than write it.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	rw := &RuleWatcher{
		path:    abs,
		monitor: monitor,
		watcher: w,
		logger:  logger.With().Str("component", "rule_watcher").Str("path", abs).Logger(),
		done:    make(chan struct{}),
	}
	rw.wg.Add(1)
	go rw.run()
	return rw, nil
}

func (rw *RuleWatcher) run() {
	defer rw.wg.Done()
	for {
		select {
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				rw.reload()
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn().Err(err).Msg("Rule watcher error")
		case <-rw.done:
			return
		}
	}
}

func (rw *RuleWatcher) reload() {
	rules, err := LoadRules(rw.path)
	if err != nil {
		rw.logger.Error().Err(err).Msg("Rejected rule file revision")
		return
	}
	rw.monitor.SetRules(rules)
	rw.logger.Info().Int("rules", len(rules)).Msg("Alert rules reloaded")
}

func (rw *RuleWatcher) Close() error {
	close(rw.done)
	err := rw.watcher.Close()
	rw.wg.Wait()
	return err
}
