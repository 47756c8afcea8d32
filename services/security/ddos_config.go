package security

import "time"

type WindowLimit struct {
	Window      time.Duration `yaml:"window" json:"window"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
}

type AutoBlockConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	RiskThreshold float64       `yaml:"risk_threshold" json:"risk_threshold"`
	BlockDuration time.Duration `yaml:"block_duration" json:"block_duration"`
}

type DistributedDetectionConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	TimeWindow time.Duration `yaml:"time_window" json:"time_window"`
	MinIPs     int           `yaml:"min_ips" json:"min_ips"`
	Threshold  int64         `yaml:"threshold" json:"threshold"`
	// MaxSourceIPs caps the addresses stored on an attack pattern.
	MaxSourceIPs int `yaml:"max_source_ips" json:"max_source_ips"`
}

// RiskWeights scale the four risk factors; with the defaults they sum to 100.
type RiskWeights struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	UserAgent float64 `yaml:"user_agent" json:"user_agent"`
	Pattern   float64 `yaml:"pattern" json:"pattern"`
	History   float64 `yaml:"history" json:"history"`
}

type DDoSConfig struct {
	Enabled                    bool                       `yaml:"enabled" json:"enabled"`
	GlobalRateLimit            WindowLimit                `yaml:"global_rate_limit" json:"global_rate_limit"`
	IPRateLimit                WindowLimit                `yaml:"ip_rate_limit" json:"ip_rate_limit"`
	Whitelist                  []string                   `yaml:"whitelist" json:"whitelist"`
	Blacklist                  []string                   `yaml:"blacklist" json:"blacklist"`
	AutoBlock                  AutoBlockConfig            `yaml:"auto_block" json:"auto_block"`
	DistributedAttackDetection DistributedDetectionConfig `yaml:"distributed_attack_detection" json:"distributed_attack_detection"`
	Weights                    RiskWeights                `yaml:"weights" json:"weights"`
}

func DefaultDDoSConfig() DDoSConfig {
	return DDoSConfig{
		Enabled: true,
		GlobalRateLimit: WindowLimit{
			Window:      time.Minute,
			MaxRequests: 10000,
		},
		IPRateLimit: WindowLimit{
			Window:      time.Minute,
			MaxRequests: 100,
		},
		AutoBlock: AutoBlockConfig{
			Enabled:       true,
			RiskThreshold: 80,
			BlockDuration: time.Hour,
		},
		DistributedAttackDetection: DistributedDetectionConfig{
			Enabled:      true,
			TimeWindow:   5 * time.Minute,
			MinIPs:       10,
			Threshold:    1000,
			MaxSourceIPs: 50,
		},
		Weights: DefaultRiskWeights(),
	}
}

func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		Frequency: 30,
		UserAgent: 20,
		Pattern:   25,
		History:   25,
	}
}

// withDefaults fills zero-valued limits so a partially specified override stays usable.
func (c DDoSConfig) withDefaults() DDoSConfig {
	d := DefaultDDoSConfig()
	if c.GlobalRateLimit.Window <= 0 {
		c.GlobalRateLimit.Window = d.GlobalRateLimit.Window
	}
	if c.GlobalRateLimit.MaxRequests <= 0 {
		c.GlobalRateLimit.MaxRequests = d.GlobalRateLimit.MaxRequests
	}
	if c.IPRateLimit.Window <= 0 {
		c.IPRateLimit.Window = d.IPRateLimit.Window
	}
	if c.IPRateLimit.MaxRequests <= 0 {
		c.IPRateLimit.MaxRequests = d.IPRateLimit.MaxRequests
	}
	if c.AutoBlock.BlockDuration <= 0 {
		c.AutoBlock.BlockDuration = d.AutoBlock.BlockDuration
	}
	if c.AutoBlock.RiskThreshold <= 0 {
		c.AutoBlock.RiskThreshold = d.AutoBlock.RiskThreshold
	}
	dd := &c.DistributedAttackDetection
	if dd.TimeWindow <= 0 {
		dd.TimeWindow = d.DistributedAttackDetection.TimeWindow
	}
	if dd.MinIPs <= 0 {
		dd.MinIPs = d.DistributedAttackDetection.MinIPs
	}
	if dd.Threshold <= 0 {
		dd.Threshold = d.DistributedAttackDetection.Threshold
	}
	if dd.MaxSourceIPs <= 0 {
		dd.MaxSourceIPs = d.DistributedAttackDetection.MaxSourceIPs
	}
	if c.Weights == (RiskWeights{}) {
		c.Weights = d.Weights
	}
	return c
}
