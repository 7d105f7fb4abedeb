package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig 跨域配置。AllowOrigins 必须显式配置。
type CORSConfig struct {
	AllowOrigins     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// Validate rejects an empty origin list and "*" combined with credentials.
func (c CORSConfig) Validate() error {
	if len(c.AllowOrigins) == 0 {
		return fmt.Errorf("CORS: AllowOrigins must be explicitly configured")
	}
	for _, origin := range c.AllowOrigins {
		if origin == "*" && c.AllowCredentials {
			return fmt.Errorf("CORS: wildcard origin cannot be used with credentials")
		}
	}
	return nil
}

// CORS returns the gin-contrib/cors handler for cfg. X-Request-ID is always
// allowed and exposed.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 12 * time.Hour
	}
	c := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     append([]string{"Origin", "Content-Type", "Accept", HeaderXRequestID}, cfg.AllowHeaders...),
		ExposeHeaders:    append([]string{HeaderXRequestID}, cfg.ExposeHeaders...),
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           maxAge,
	}
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			c.AllowAllOrigins = true
			break
		}
	}
	if !c.AllowAllOrigins {
		c.AllowOrigins = cfg.AllowOrigins
	}
	return cors.New(c)
}
