// Package resilience provides reliability and fault tolerance patterns for outbound
// publishing calls.
//
// The package supports:
//   - Circuit breakers per remote platform (circuitbreaker)
//   - Error-aware backoff with rate-limit floors, jitter and a cap (retry)
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.PlatformConfig("twitter"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callRemoteAPI()
//	})
//
//	policy := retry.DefaultPolicy()
//	delay := policy.Delay(attempt, err)
package resilience
