// Package ratelimit names the throttled auth buckets and their default limits.
package ratelimit

import "time"

// Limit allows Limit requests per Window for one client in one bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

const (
	BucketSignIn       = "auth:sign-in"
	BucketSignUp       = "auth:sign-up"
	BucketVerifyOTP    = "auth:verify-otp"
	BucketResendOTP    = "auth:resend-otp"
	BucketRefresh      = "auth:refresh-token"
	BucketClerkWebhook = "clerk:webhook"
	BucketDefault      = "default"
)

// DefaultLimits are applied when no override is configured.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		BucketSignIn:       {Limit: 10, Window: time.Minute},
		BucketSignUp:       {Limit: 5, Window: time.Minute},
		BucketVerifyOTP:    {Limit: 10, Window: 10 * time.Minute},
		BucketResendOTP:    {Limit: 3, Window: 10 * time.Minute},
		BucketRefresh:      {Limit: 30, Window: time.Minute},
		BucketClerkWebhook: {Limit: 600, Window: time.Minute},
		BucketDefault:      {Limit: 100, Window: time.Minute},
	}
}

// Resolve returns the limit for bucket, falling back to the default bucket.
func Resolve(limits map[string]Limit, bucket string) Limit {
	if v, ok := limits[bucket]; ok {
		return v
	}
	if v, ok := limits[BucketDefault]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}
