package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"motion-live-client/config"
	"motion-live-client/internal/mw"
)

// NewRouter creates and configures a new Gin router. Voter and moderator
// routes are only mounted for the attached session's role.
func NewRouter(handler *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	if cfg.RateLimitPerSec <= 0 || cfg.RateLimitBurst <= 0 {
		cfg.RateLimitPerSec, cfg.RateLimitBurst = 10, 5
	}
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/status", handler.GetStatus)
		api.GET("/view", handler.GetView)

		if handler.voter != nil {
			api.POST("/vote", handler.PostVote)
			api.POST("/help/dismiss", handler.PostDismissHelp)
		}

		if handler.moderator != nil {
			api.GET("/motions", handler.GetMotions)
			motions := api.Group("/motions/:id")
			motions.POST("/select", handler.MotionAction(ModeratorSession.Select))
			motions.POST("/open", handler.MotionAction(ModeratorSession.Open))
			motions.POST("/close", handler.MotionAction(ModeratorSession.Close))
			motions.POST("/reveal", handler.MotionAction(ModeratorSession.Reveal))
			motions.POST("/hide", handler.MotionAction(ModeratorSession.Hide))
			motions.POST("/reset", handler.MotionAction(ModeratorSession.Reset))
			motions.POST("/timer", handler.PostTimer)
		}

		if handler.store != nil {
			api.GET("/subscriptions", handler.GetSubscription)
			api.PUT("/subscriptions", handler.PutSubscription)
			api.DELETE("/subscriptions", handler.DeleteSubscription)
		}
		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)
	}

	return r
}
