package api

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds the HTTP settings that are not part of the handler.
type RouterConfig struct {
	CORSOrigins []string
	ImageDir    string
}

// corsConfig allows any origin for "*" and otherwise the listed origins with credentials.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// NewRouter wires the handler's routes onto a gin engine.
func NewRouter(h *Handler, logger *slog.Logger, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())
	r.Use(cors.New(corsConfig(rc.CORSOrigins)))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	apiGroup := r.Group("/api")
	apiGroup.GET("/health", h.APIHealth)

	food := apiGroup.Group("/food")
	food.POST("/analyze/text", h.AnalyzeFoodText)
	food.POST("/analyze/image", h.AnalyzeFoodImage)
	food.POST("/analyze/nutrition-label", h.AnalyzeNutritionLabel)
	food.POST("/correct/text", h.CorrectFoodAnalysis)
	food.POST("/correct/nutrition-label", h.CorrectNutritionLabel)

	exercise := apiGroup.Group("/exercise")
	exercise.POST("/analyze", h.AnalyzeExercise)
	exercise.POST("/correct", h.CorrectExerciseAnalysis)

	history := apiGroup.Group("/history")
	history.GET("/food", h.ListFoodAnalyses)
	history.GET("/food/:id", h.GetFoodAnalysis)
	history.GET("/exercise", h.ListExerciseAnalyses)
	history.GET("/exercise/:id", h.GetExerciseAnalysis)

	if rc.ImageDir != "" {
		r.Static("/images", rc.ImageDir)
	}

	return r
}
