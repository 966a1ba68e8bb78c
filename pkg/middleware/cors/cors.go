package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Policy is the set of browser origins allowed to call the API and open
// realtime sockets. An empty policy allows every origin.
type Policy struct {
	origins map[string]struct{}
}

// NewPolicy builds a policy from configured origins.
func NewPolicy(allowedOrigins []string) Policy {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[normalize(origin)] = struct{}{}
	}
	return Policy{origins: origins}
}

// Allows reports whether origin may access the API. Requests without an
// Origin header are not browser cross-origin requests and always pass.
func (p Policy) Allows(origin string) bool {
	if origin == "" || len(p.origins) == 0 {
		return true
	}
	_, ok := p.origins[normalize(origin)]
	return ok
}

// CheckOrigin adapts the policy to the websocket upgrader hook.
func (p Policy) CheckOrigin(r *http.Request) bool {
	return p.Allows(r.Header.Get("Origin"))
}

// Middleware sets CORS headers and answers preflight requests.
func (p Policy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		switch {
		case origin != "" && p.Allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && len(p.origins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, Idempotency-Key")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID, Content-Disposition")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
