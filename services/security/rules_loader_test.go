package security

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customRules = `
rules:
  - id: otp_flood
    name: OTP flood
    type: otp
    enabled: true
    cooldown: 10m
    conditions:
      - field: otp_requests
        operator: gte
        threshold: 15
        time_window: 10m
    actions:
      - type: block
        severity: high
        duration: 45m
      - type: alert
        severity: high
`

func TestBuiltinRulesAreValid(t *testing.T) {
	rules := BuiltinRules()
	require.Len(t, rules, 6)
	require.NoError(t, ValidateRules(rules))
	assert.Equal(t, time.Hour, longestWindow(rules))
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(customRules))
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, "otp_flood", r.ID)
	assert.Equal(t, 10*time.Minute, r.Cooldown)
	assert.Equal(t, OpGreaterThanOrEqual, r.Conditions[0].Operator)
	assert.Equal(t, 10*time.Minute, r.Conditions[0].TimeWindow)
	assert.Equal(t, ActionBlock, r.Actions[0].Type)
	assert.Equal(t, 45*time.Minute, r.Actions[0].Duration)
	assert.Equal(t, model.SeverityHigh, r.Actions[1].Severity)
}

func TestParseRules_MergesBuiltin(t *testing.T) {
	doc := `
include_builtin: true
rules:
  - id: rapid_login_attempts
    name: Rapid login attempts
    type: login
    enabled: false
    conditions:
      - {field: login_attempts, operator: gte, threshold: 20, time_window: 5m}
    actions:
      - {type: alert, severity: low}
` + customRules[len("\nrules:\n"):]

	rules, err := ParseRules([]byte(doc))
	require.NoError(t, err)
	require.Len(t, rules, 7)
	assert.Equal(t, "rapid_login_attempts", rules[0].ID)
	assert.False(t, rules[0].Enabled)
	assert.Equal(t, 20.0, rules[0].Conditions[0].Threshold)
	assert.Equal(t, "otp_flood", rules[6].ID)
}

func TestParseRules_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `
rules:
  - id: r1
    name: r1
    type: login
    conditions: [{field: shoe_size, operator: gt, threshold: 1, time_window: 1m}]
    actions: [{type: log, severity: low}]
`,
		"unknown operator": `
rules:
  - id: r1
    name: r1
    type: login
    conditions: [{field: login_attempts, operator: between, threshold: 1, time_window: 1m}]
    actions: [{type: log, severity: low}]
`,
		"no actions": `
rules:
  - id: r1
    name: r1
    type: login
    conditions: [{field: login_attempts, operator: gt, threshold: 1, time_window: 1m}]
`,
		"duplicate id": `
rules:
  - id: r1
    name: r1
    type: login
    conditions: [{field: login_attempts, operator: gt, threshold: 1, time_window: 1m}]
    actions: [{type: log, severity: low}]
  - id: r1
    name: again
    type: login
    conditions: [{field: login_attempts, operator: gt, threshold: 1, time_window: 1m}]
    actions: [{type: log, severity: low}]
`,
		"bad severity": `
rules:
  - id: r1
    name: r1
    type: login
    conditions: [{field: login_attempts, operator: gt, threshold: 1, time_window: 1m}]
    actions: [{type: log, severity: catastrophic}]
`,
		"not yaml": "rules: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestWatchRules_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("include_builtin: true\n"), 0o644))

	env := newTestEnv(t)
	initial, err := LoadRules(path)
	require.NoError(t, err)
	monitor := NewSuspiciousActivityMonitor(env.limiter, env.tracker, initial, testOptions(env.clock)...)
	require.Len(t, monitor.Rules(), 6)

	watcher, err := WatchRules(path, monitor, zerolog.Nop())
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(path, []byte(customRules), 0o644))
	require.Eventually(t, func() bool {
		rules := monitor.Rules()
		return len(rules) == 1 && rules[0].ID == "otp_flood"
	}, 5*time.Second, 20*time.Millisecond)

	// a broken revision keeps the last good rules
	require.NoError(t, os.WriteFile(path, []byte("rules: ["), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, monitor.Rules(), 1)
}
