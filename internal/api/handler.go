package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pockeat/internal/analysis"
	"pockeat/internal/nutrition"
	"pockeat/internal/platform/imaging"
)

// Version is reported by the root and health endpoints.
const Version = "1.0.0"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Analyzer defines the interface for food and exercise analysis.
type Analyzer interface {
	Available() bool
	AnalyzeFoodText(ctx context.Context, description string) (*nutrition.FoodAnalysisResult, error)
	AnalyzeFoodImage(ctx context.Context, img imaging.Image) (*nutrition.FoodAnalysisResult, error)
	AnalyzeNutritionLabel(ctx context.Context, img imaging.Image, servings float64) (*nutrition.FoodAnalysisResult, error)
	CorrectFoodAnalysis(ctx context.Context, previous nutrition.FoodAnalysisResult, comment string) (*nutrition.FoodAnalysisResult, error)
	CorrectNutritionLabel(ctx context.Context, previous nutrition.FoodAnalysisResult, comment string, servings float64) (*nutrition.FoodAnalysisResult, error)
	AnalyzeExercise(ctx context.Context, description string, metrics nutrition.HealthMetrics) (*nutrition.ExerciseAnalysisResult, error)
	CorrectExerciseAnalysis(ctx context.Context, previous nutrition.ExerciseAnalysisResult, comment string, metrics nutrition.HealthMetrics) (*nutrition.ExerciseAnalysisResult, error)
}

// AnalysisStore defines the interface for analysis history operations.
type AnalysisStore interface {
	SaveFoodAnalysis(ctx context.Context, result *nutrition.FoodAnalysisResult, imageHash string) error
	GetFoodAnalysis(ctx context.Context, id string) (*nutrition.FoodAnalysisResult, error)
	GetFoodAnalysisByImageHash(ctx context.Context, imageHash string) (*nutrition.FoodAnalysisResult, error)
	ListFoodAnalyses(ctx context.Context, limit int) ([]*nutrition.FoodAnalysisResult, error)
	SaveExerciseAnalysis(ctx context.Context, result *nutrition.ExerciseAnalysisResult) error
	GetExerciseAnalysis(ctx context.Context, id string) (*nutrition.ExerciseAnalysisResult, error)
	ListExerciseAnalyses(ctx context.Context, limit int) ([]*nutrition.ExerciseAnalysisResult, error)
	Ping(ctx context.Context) error
}

// Options tune a Handler.
type Options struct {
	// Timeout bounds the model and database calls of a single request.
	Timeout time.Duration
	// ImageDir receives resized uploads; empty disables saving.
	ImageDir    string
	Environment string
}

// Handler handles HTTP requests.
type Handler struct {
	Analyzer Analyzer
	Store    AnalysisStore
	Logger   *slog.Logger

	timeout     time.Duration
	imageDir    string
	environment string
	now         func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(analyzer Analyzer, store AnalysisStore, logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &Handler{
		Analyzer:    analyzer,
		Store:       store,
		Logger:      logger,
		timeout:     opts.Timeout,
		imageDir:    opts.ImageDir,
		environment: opts.Environment,
		now:         time.Now,
	}
}

// errorStatus maps an error to an HTTP status and message.
func (h *Handler) errorStatus(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout, fmt.Sprintf("Request timed out after %s", h.timeout)
	}
	var analysisErr *analysis.Error
	if errors.As(err, &analysisErr) {
		return analysisErr.StatusCode(), analysisErr.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := h.errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	} else {
		h.Logger.Warn("request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"detail": msg})
}

// respondImageError writes the food-shaped error body used by the food image route.
func (h *Handler) respondImageError(c *gin.Context, status int, msg string) {
	h.Logger.Warn("food image analysis failed", "status", status, "error", msg)
	c.JSON(status, gin.H{
		"error":          msg,
		"food_name":      "Unknown",
		"ingredients":    []nutrition.Ingredient{},
		"nutrition_info": nutrition.NutritionInfo{VitaminsAndMinerals: map[string]float64{}},
	})
}

// requireAnalyzer answers 503 when no model is configured.
func (h *Handler) requireAnalyzer(c *gin.Context) bool {
	if h.Analyzer == nil || !h.Analyzer.Available() {
		h.respondError(c, analysis.ErrUnavailable)
		return false
	}
	return true
}

// readImage reads and prepares the multipart "image" upload.
func readImage(c *gin.Context) (imaging.Image, []byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return imaging.Image{}, nil, &analysis.Error{Kind: analysis.KindInvalidImage, Message: "No image file provided", Err: err}
	}

	src, err := file.Open()
	if err != nil {
		return imaging.Image{}, nil, fmt.Errorf("open file err: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return imaging.Image{}, nil, fmt.Errorf("read image err: %w", err)
	}

	img, err := imaging.Prepare(data)
	if err != nil {
		return imaging.Image{}, nil, &analysis.Error{Kind: analysis.KindInvalidImage, Message: "Invalid image file", Err: err}
	}
	return img, data, nil
}

// saveImage stores the prepared upload and returns its public URL, or "" on failure.
func (h *Handler) saveImage(hash string, img imaging.Image) string {
	if h.imageDir == "" {
		return ""
	}
	name, err := imaging.Save(h.imageDir, hash, img)
	if err != nil {
		h.Logger.Error("failed to save image", "image_hash", hash, "error", err)
		return ""
	}
	return "/images/" + name
}

func (h *Handler) saveFood(ctx context.Context, result *nutrition.FoodAnalysisResult, imageHash string) {
	if err := h.Store.SaveFoodAnalysis(ctx, result, imageHash); err != nil {
		h.Logger.Error("failed to save food analysis", "id", result.ID, "error", err)
	}
}

func (h *Handler) saveExercise(ctx context.Context, result *nutrition.ExerciseAnalysisResult) {
	if err := h.Store.SaveExerciseAnalysis(ctx, result); err != nil {
		h.Logger.Error("failed to save exercise analysis", "id", result.ID, "error", err)
	}
}

// Root reports that the service is running.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "PockEat API is running",
		"version": Version,
	})
}

// Health reports detailed system and service status.
func (h *Handler) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	gemini := "unavailable"
	if h.Analyzer != nil && h.Analyzer.Available() {
		gemini = "available"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	database := "available"
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Warn("database ping failed", "error", err)
		database = "unavailable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"version":   Version,
		"system": gin.H{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
			"cpus":       runtime.NumCPU(),
			"memory": gin.H{
				"alloc_mb": float64(mem.Alloc) / (1 << 20),
				"sys_mb":   float64(mem.Sys) / (1 << 20),
				"num_gc":   mem.NumGC,
			},
		},
		"services": gin.H{
			"gemini":   gemini,
			"database": database,
		},
		"environment": h.environment,
	})
}

// APIHealth reports whether the analysis backend can serve requests.
func (h *Handler) APIHealth(c *gin.Context) {
	if h.Analyzer == nil || !h.Analyzer.Available() {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "message": "Gemini service is unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "API is running and Gemini service is available"})
}

// AnalyzeFoodText handles POST /api/food/analyze/text.
func (h *Handler) AnalyzeFoodText(c *gin.Context) {
	if !h.requireAnalyzer(c) {
		return
	}

	var req nutrition.FoodAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %s", err.Error())})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.Analyzer.AnalyzeFoodText(ctx, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.saveFood(ctx, result, "")
	c.JSON(http.StatusOK, result)
}

// AnalyzeFoodImage handles POST /api/food/analyze/image. Images that were
// analysed before are answered from the store without calling the model.
func (h *Handler) AnalyzeFoodImage(c *gin.Context) {
	if h.Analyzer == nil || !h.Analyzer.Available() {
		h.respondImageError(c, http.StatusServiceUnavailable, analysis.ErrUnavailable.Message)
		return
	}

	img, raw, err := readImage(c)
	if err != nil {
		status, msg := h.errorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		h.respondImageError(c, status, msg)
		return
	}
	imageHash := imaging.Hash(raw)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	cached, err := h.Store.GetFoodAnalysisByImageHash(ctx, imageHash)
	if err != nil {
		h.Logger.Warn("image lookup failed", "image_hash", imageHash, "error", err)
	}
	if cached != nil {
		h.Logger.Info("food analysis found in database", "image_hash", imageHash, "id", cached.ID)
		c.JSON(http.StatusOK, cached)
		return
	}

	result, err := h.Analyzer.AnalyzeFoodImage(ctx, img)
	if err != nil {
		status, msg := h.errorStatus(err)
		h.respondImageError(c, status, msg)
		return
	}

	if result.Error == "" {
		result.FoodImageURL = h.saveImage(imageHash, img)
	}
	h.saveFood(ctx, result, imageHash)
	c.JSON(http.StatusOK, result)
}

// AnalyzeNutritionLabel handles POST /api/food/analyze/nutrition-label.
func (h *Handler) AnalyzeNutritionLabel(c *gin.Context) {
	if !h.requireAnalyzer(c) {
		return
	}

	servings, err := strconv.ParseFloat(c.DefaultPostForm("servings", "1"), 64)
	if err != nil || servings <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Servings must be a number greater than 0"})
		return
	}

	img, raw, err := readImage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.Analyzer.AnalyzeNutritionLabel(ctx, img, servings)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if result.Error == "" {
		result.FoodImageURL = h.saveImage(imaging.Hash(raw), img)
	}
	h.saveFood(ctx, result, "")
	c.JSON(http.StatusOK, result)
}

// CorrectFoodAnalysis handles POST /api/food/correct/text.
func (h *Handler) CorrectFoodAnalysis(c *gin.Context) {
	if !h.requireAnalyzer(c) {
		return
	}

	var req nutrition.FoodCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %s", err.Error())})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.Analyzer.CorrectFoodAnalysis(ctx, *req.PreviousResult, req.UserComment)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.saveFood(ctx, result, "")
	c.JSON(http.StatusOK, result)
}

// CorrectNutritionLabel handles POST /api/food/correct/nutrition-label.
func (h *Handler) CorrectNutritionLabel(c *gin.Context) {
	if !h.requireAnalyzer(c) {
		return
	}

	var req nutrition.FoodCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %s", err.Error())})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.Analyzer.CorrectNutritionLabel(ctx, *req.PreviousResult, req.UserComment, req.ServingsOrDefault())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.saveFood(ctx, result, "")
	c.JSON(http.StatusOK, result)
}

// AnalyzeExercise handles POST /api/exercise/analyze.
func (h *Handler) AnalyzeExercise(c *gin.Context) {
	if !h.requireAnalyzer(c) {
		return
	}

	var req nutrition.ExerciseAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %s", err.Error())})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.Analyzer.AnalyzeExercise(ctx, req.Description, req.HealthMetrics)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.saveExercise(ctx, result)
	c.JSON(http.StatusOK, result)
}

// CorrectExerciseAnalysis handles POST /api/exercise/correct.
func (h *Handler) CorrectExerciseAnalysis(c *gin.Context) {
	if !h.requireAnalyzer(c) {
		return
	}

	var req nutrition.ExerciseCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid request: %s", err.Error())})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result, err := h.Analyzer.CorrectExerciseAnalysis(ctx, *req.PreviousResult, req.UserComment, req.HealthMetrics)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.saveExercise(ctx, result)
	c.JSON(http.StatusOK, result)
}

// historyLimit parses the "limit" query parameter.
func historyLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

// ListFoodAnalyses handles GET /api/history/food.
func (h *Handler) ListFoodAnalyses(c *gin.Context) {
	limit, err := historyLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results, err := h.Store.ListFoodAnalyses(ctx, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetFoodAnalysis handles GET /api/history/food/:id.
func (h *Handler) GetFoodAnalysis(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.Store.GetFoodAnalysis(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Food analysis not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListExerciseAnalyses handles GET /api/history/exercise.
func (h *Handler) ListExerciseAnalyses(c *gin.Context) {
	limit, err := historyLimit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results, err := h.Store.ListExerciseAnalyses(ctx, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetExerciseAnalysis handles GET /api/history/exercise/:id.
func (h *Handler) GetExerciseAnalysis(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.Store.GetExerciseAnalysis(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Exercise analysis not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}
