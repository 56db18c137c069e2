package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig allows local development origins only. The terminal
// host executes shells, so cross-origin access is opt-in.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			"X-Request-ID",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// WithOrigins returns cfg allowing origins in addition to its own.
func (cfg CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) > 0 {
		merged := make([]string, 0, len(cfg.AllowOrigins)+len(origins))
		cfg.AllowOrigins = append(append(merged, cfg.AllowOrigins...), origins...)
	}
	return cfg
}

// CORS creates a CORS middleware with the provided configuration.
// Origins with a non-web scheme (editor webviews, for instance) are matched
// exactly.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	var web []string
	other := make(map[string]struct{})
	for _, o := range cfg.AllowOrigins {
		if strings.HasPrefix(o, "http://") || strings.HasPrefix(o, "https://") {
			web = append(web, o)
		} else {
			other[o] = struct{}{}
		}
	}
	c := cors.Config{
		AllowOrigins:     web,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		AllowCredentials: cfg.AllowCredentials,
		AllowWildcard:    true,
		AllowWebSockets:  true,
		MaxAge:           cfg.MaxAge,
	}
	if len(other) > 0 {
		c.AllowOriginFunc = func(origin string) bool {
			_, ok := other[origin]
			return ok
		}
	}
	return cors.New(c)
}
