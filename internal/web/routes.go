package web

import "github.com/gin-gonic/gin"

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api")
	api.GET("/catalog", h.catalog)
	api.POST("/signup", h.limit, h.signup)
	api.POST("/login", h.limit, h.login)

	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:room/presence", h.presence)
	api.GET("/feedback", h.feedbackLog)

	api.POST("/sessions", h.limit, h.openSession)
	sess := api.Group("/sessions/:sid", h.session)
	sess.GET("", h.sessionInfo)
	sess.DELETE("", h.closeSession)
	sess.POST("/logout", h.logout)
	sess.GET("/transcript", h.transcript)
	sess.GET("/events", h.events)
	sess.POST("/messages", h.send)
	sess.POST("/messages/:id/feedback", h.feedback)
	sess.PUT("/mode", h.setMode)
	sess.PUT("/context", h.setContext)
	sess.PUT("/room", h.switchRoom)
}
