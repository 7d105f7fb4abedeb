// Package router registers the OKR service routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/internal/okr/handler"
)

// Handlers groups the handlers exposed over HTTP.
type Handlers struct {
	Objective *handler.ObjectiveHandler
	KeyResult *handler.KeyResultHandler
	Chatbot   *handler.ChatbotHandler
	Health    *handler.HealthHandler
	// Metrics 为空时不暴露 /metrics
	Metrics http.Handler
}

// MetricsPath is where Prometheus metrics are served.
const MetricsPath = "/metrics"

// Register registers the OKR routes on r.
func Register(r gin.IRouter, h Handlers) {
	logger.Info("Registering OKR routes...")

	r.GET("/health", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)
	if h.Metrics != nil {
		r.GET(MetricsPath, gin.WrapH(h.Metrics))
	}

	objectives := r.Group("/objectives")
	{
		objectives.GET("", h.Objective.List)
		objectives.POST("", h.Objective.Create)
		objectives.POST("/ai", h.Objective.Suggest)
		objectives.GET("/:id", h.Objective.Get)
		objectives.GET("/:id/is-complete", h.Objective.IsComplete)
		objectives.PUT("/:id", h.Objective.Update)
		objectives.DELETE("/:id", h.Objective.Delete)
	}

	// 目标下的关键结果集合
	collection := r.Group("/objective/:objectiveId/key-results")
	{
		collection.GET("", h.Objective.ListKeyResults)
		collection.POST("", h.Objective.AddKeyResult)
		collection.DELETE("", h.Objective.ClearKeyResults)
	}

	keyResults := r.Group("/key-results/:id")
	{
		keyResults.GET("", h.KeyResult.Get)
		keyResults.DELETE("", h.KeyResult.Delete)
		keyResults.PATCH("", h.KeyResult.UpdateProgress)
		keyResults.PATCH("/toggle-complete", h.KeyResult.ToggleComplete)
	}

	chatbot := r.Group("/chatbot")
	{
		chatbot.POST("", h.Chatbot.Chat)
		chatbot.GET("/reset", h.Chatbot.Reset)
		chatbot.GET("/stream", h.Chatbot.Stream)
	}

	logger.Info("HTTP routes registered")
}
