package middleware

// HTTP header names used by the middleware chain.
const (
	// RequestIDHeader carries the request correlation ID.
	RequestIDHeader = "X-Request-ID"

	// HeaderXForwardedFor is the standard forwarded client IP chain.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderRetryAfter tells a rate limited client when to retry.
	HeaderRetryAfter = "Retry-After"

	// HeaderRateLimitLimit reports the bucket capacity.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining reports the tokens left in the bucket.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset reports seconds until the bucket refills.
	HeaderRateLimitReset = "X-RateLimit-Reset"

	// HeaderCacheStatus reports whether the response was served from
	// the response cache.
	HeaderCacheStatus = "X-Cache"

	// CacheStatusHit and CacheStatusMiss are the HeaderCacheStatus values.
	CacheStatusHit  = "HIT"
	CacheStatusMiss = "MISS"
)
