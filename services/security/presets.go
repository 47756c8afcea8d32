package security

import "time"

const (
	ActionLogin         = "login"
	ActionRegistration  = "registration"
	ActionAPI           = "api"
	ActionPayment       = "payment"
	ActionOTP           = "otp"
	ActionPasswordReset = "passwordReset"
)

// DefaultBlockDuration applies when a block is requested without a duration.
const DefaultBlockDuration = time.Hour

type RateLimitConfig struct {
	Window                 time.Duration `yaml:"window" json:"window" validate:"required,gt=0"`
	MaxRequests            int           `yaml:"max_requests" json:"max_requests" validate:"required,min=1"`
	SkipSuccessfulRequests bool          `yaml:"skip_successful_requests" json:"skip_successful_requests"`
	SkipFailedRequests     bool          `yaml:"skip_failed_requests" json:"skip_failed_requests"`
	Description            string        `yaml:"description" json:"description"`
}

func DefaultRateLimitConfigs() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		ActionLogin: {
			Window:                 15 * time.Minute,
			MaxRequests:            5,
			SkipSuccessfulRequests: true,
			Description:            "Login attempts rate limit",
		},
		ActionRegistration: {
			Window:      time.Hour,
			MaxRequests: 3,
			Description: "Registration rate limit",
		},
		ActionAPI: {
			Window:                 time.Minute,
			MaxRequests:            100,
			SkipSuccessfulRequests: true,
			Description:            "General API rate limit",
		},
		ActionPayment: {
			Window:                 time.Hour,
			MaxRequests:            10,
			SkipSuccessfulRequests: true,
			Description:            "Payment attempts rate limit",
		},
		ActionOTP: {
			Window:      time.Minute,
			MaxRequests: 3,
			Description: "One-time password request rate limit",
		},
		ActionPasswordReset: {
			Window:      time.Hour,
			MaxRequests: 5,
			Description: "Password reset request rate limit",
		},
	}
}
