package dto

import "time"

type RateLimitResult struct {
	Allowed   bool      `json:"allowed" example:"true"`
	Remaining int       `json:"remaining" example:"4"`
	ResetTime time.Time `json:"reset_time"`
	TotalHits int       `json:"total_hits" example:"1"`
}

type BlockStatus struct {
	Blocked   bool       `json:"blocked" example:"true"`
	Reason    string     `json:"reason,omitempty" example:"Security rule triggered: Rapid login attempts"`
	BlockedAt *time.Time `json:"blocked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RateLimitConfigResponse struct {
	Action                 string `json:"action" example:"login"`
	MaxRequests            int    `json:"max_requests" example:"5"`
	Window                 string `json:"window" example:"15m0s"`
	SkipSuccessfulRequests bool   `json:"skip_successful_requests"`
	SkipFailedRequests     bool   `json:"skip_failed_requests"`
}

type UpdateRateLimitConfigRequest struct {
	MaxRequests            int    `json:"max_requests" validate:"omitempty,min=1" example:"10"`
	Window                 string `json:"window" validate:"omitempty,duration" example:"15m"`
	SkipSuccessfulRequests *bool  `json:"skip_successful_requests"`
	SkipFailedRequests     *bool  `json:"skip_failed_requests"`
}

func (r UpdateRateLimitConfigRequest) Validate() error {
	return GetValidator().Struct(r)
}
