package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-admin-api/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	requestIDKey    = "request_id"
	processingKey   = "processing_time_ms"
)

// WithResponseMeta prepares the per-request meta map rendered in the envelope.
// The request id is seeded up front so every handler response can be correlated
// with the gin access log line.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := map[string]interface{}{}
		if id := requestid.Value(c); id != "" {
			meta[requestIDKey] = id
		}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, exists := meta[processingKey]; !exists {
			meta[processingKey] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether the leaderboard cache served the current response.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// SetMeta stores one key in the response meta.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	metaFor(c)[key] = value
}

// ExtractMeta returns a copy of the response meta, or nil when none was recorded.
// Handlers merge their own keys into the copy without touching the shared map.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	stored, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, ok := stored.(map[string]interface{})
	if !ok || len(meta) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func metaFor(c *gin.Context) map[string]interface{} {
	if stored, ok := c.Get(responseMetaKey); ok {
		if meta, ok := stored.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := map[string]interface{}{}
	c.Set(responseMetaKey, meta)
	return meta
}
