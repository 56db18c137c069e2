// Package middleware provides the HTTP middleware used in front of the
// terminal host API.
//
// Middleware stack includes:
//   - CORS: cross-origin access, limited to local origins unless configured
//   - RateLimit: per-IP token buckets with idle cleanup
//   - GlobalRateLimit: one shared token bucket
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
