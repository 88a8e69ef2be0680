package metrics

// Circuit breaker lifecycle events shared by provider wrappers.
const (
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
	EventRateLimit     = "rate_limited"
)
