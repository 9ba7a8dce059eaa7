/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"github.com/ownerfi/dealflow/config"
)

// KeyHeader carries the server secret key.
const KeyHeader = "X-Dealflow-Key"

// RateLimit throttles requests with tollbooth. API callers are counted per
// client IP; webhook deliveries are counted per service so each provider
// gets its own bucket. A config without rps or burst disables the limiter.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond == nil || cfg.Burst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	opts := &limiter.ExpirableOptions{}
	if cfg.CleanupIntervalSec != nil {
		opts.DefaultExpirationTTL = time.Duration(*cfg.CleanupIntervalSec) * time.Second
	}
	lmt := tollbooth.NewLimiter(*cfg.RequestsPerSecond, opts)
	lmt.SetBurst(*cfg.Burst)

	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByKeys(lmt, []string{bucket(c)}); httpError != nil {
			c.AbortWithStatusJSON(httpError.StatusCode, gin.H{"error": httpError.Message})
			return
		}
		c.Next()
	}
}

func bucket(c *gin.Context) string {
	if service, ok := strings.CutPrefix(c.Request.URL.Path, "/webhooks/"); ok {
		return "webhook:" + service
	}
	return "client:" + c.ClientIP()
}

// SecretKeyAuth requires secret in KeyHeader on every route except the
// health check and paths under one of the public prefixes.
func SecretKeyAuth(secret string, public ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path, public) {
			c.Next()
			return
		}
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Secret key is not configured"})
			return
		}

		given := c.GetHeader(KeyHeader)
		switch {
		case given == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing secret key"})
		case subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret key"})
		default:
			c.Next()
		}
	}
}

func isPublic(path string, prefixes []string) bool {
	if path == "/" {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
