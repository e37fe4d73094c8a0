package domain

import "fmt"

const (
	RateLimitScopeIP       = "ip"
	RateLimitScopeIdentity = "identity"
)

// RateLimitKey is the counter key for one scope and subject.
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("chat:ratelimit:%s:%s", scope, subject)
}
