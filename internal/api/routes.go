package api

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/threatscore/internal/engine"
	"github.com/rawblock/threatscore/internal/logging"
)

// Router wires all HTTP dependencies into a gin.Engine.
type Router struct {
	Engine          *engine.ScoreEngine
	Hub             *Hub
	MetricsHandler  gin.HandlerFunc
	AuthToken       string
	AllowedOrigins  string
	RateLimitPerMin int
	RateLimitBurst  int
	Log             *logging.Logger
}

// Setup builds the gin.Engine: public /health and /metrics, a
// CORS-wrapped /score hot path left intentionally unauthenticated (a DNS
// sinkhole calls it inline, any rate-limiting belongs at the edge), and
// bearer-token-gated, rate-limited /feedback and /stream.
func (rt *Router) Setup() *gin.Engine {
	r := gin.Default()

	allowedOrigins := rt.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	}
	r.Use(corsMiddleware(allowedOrigins))

	handler := &Handler{Engine: rt.Engine, Hub: rt.Hub}

	pub := r.Group("/")
	{
		pub.GET("/health", handler.Health)
		pub.POST("/score", handler.Score)
		if rt.MetricsHandler != nil {
			pub.GET("/metrics", rt.MetricsHandler)
		}
	}

	protected := r.Group("/")
	protected.Use(AuthMiddleware(rt.AuthToken, rt.Log))
	protected.Use(NewRateLimiter(rt.RateLimitPerMin, rt.RateLimitBurst).Middleware())
	{
		protected.POST("/feedback", handler.Feedback)
		if rt.Hub != nil {
			protected.GET("/stream", rt.Hub.Subscribe)
		}
	}

	return r
}

func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
