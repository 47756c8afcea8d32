package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadSecuritySettings_Defaults(t *testing.T) {
	s, err := loadSecuritySettings(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, defaultCleanupInterval, s.cleanupInterval)
	assert.Empty(t, s.rulesFile)
	assert.True(t, s.config.DDoS.Enabled)
	assert.Equal(t, 100, s.config.DDoS.IPRateLimit.MaxRequests)
	assert.Len(t, s.config.Rules, 6)
}

func TestLoadSecuritySettings_Overrides(t *testing.T) {
	s, err := loadSecuritySettings(envMap(map[string]string{
		"SECURITY_CLEANUP_INTERVAL": "15m",
		"DDOS_ENABLED":              "false",
		"DDOS_WHITELIST":            "10.0.0.0/8, 192.168.1.10 ,",
		"DDOS_BLACKLIST":            "198.51.100.0/24",
		"DDOS_IP_MAX_REQUESTS":      "250",
		"DDOS_GLOBAL_MAX_REQUESTS":  "50000",
		"DDOS_AUTOBLOCK_THRESHOLD":  "65.5",
	}))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, s.cleanupInterval)
	assert.False(t, s.config.DDoS.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, s.config.DDoS.Whitelist)
	assert.Equal(t, []string{"198.51.100.0/24"}, s.config.DDoS.Blacklist)
	assert.Equal(t, 250, s.config.DDoS.IPRateLimit.MaxRequests)
	assert.Equal(t, 50000, s.config.DDoS.GlobalRateLimit.MaxRequests)
	assert.Equal(t, 65.5, s.config.DDoS.AutoBlock.RiskThreshold)
}

func TestLoadSecuritySettings_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"cleanup interval":   {"SECURITY_CLEANUP_INTERVAL": "soon"},
		"negative interval":  {"SECURITY_CLEANUP_INTERVAL": "-1h"},
		"ddos enabled":       {"DDOS_ENABLED": "maybe"},
		"ip max requests":    {"DDOS_IP_MAX_REQUESTS": "0"},
		"global max":         {"DDOS_GLOBAL_MAX_REQUESTS": "lots"},
		"threshold too high": {"DDOS_AUTOBLOCK_THRESHOLD": "101"},
		"missing rules file": {"SECURITY_RULES_FILE": filepath.Join(t.TempDir(), "missing.yaml")},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadSecuritySettings(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadSecuritySettings_RulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: course_hoarding
    name: Course hoarding
    type: data_access
    enabled: true
    conditions:
      - field: course_views
        operator: gte
        threshold: 30
        time_window: 5m
    actions:
      - type: alert
        severity: medium
`), 0o600))

	s, err := loadSecuritySettings(envMap(map[string]string{"SECURITY_RULES_FILE": path}))
	require.NoError(t, err)
	assert.Equal(t, path, s.rulesFile)

	var ids []string
	for _, rule := range s.config.Rules {
		ids = append(ids, rule.ID)
	}
	assert.Contains(t, ids, "course_hoarding")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(" , "))
	assert.Equal(t, []string{"a", "b"}, splitList("a,, b "))
}
