package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"pockeat/internal/nutrition"
	"pockeat/internal/platform/imaging"
)

// Default food names used when the model does not return one.
const (
	DefaultImageFoodName = "Food Image"
	DefaultLabelFoodName = "Nutrition Label"
)

// Model is a language model that answers prompts with text.
type Model interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateWithImage(ctx context.Context, prompt string, img imaging.Image) (string, error)
}

// Analyzer turns food and exercise descriptions into nutrition records by
// prompting a Model and parsing its answer.
type Analyzer struct {
	model  Model
	cache  *cache.Cache
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAnalyzer creates an Analyzer. A nil model makes every operation fail with
// ErrUnavailable; a non-positive cacheTTL disables memoisation of text analyses.
func NewAnalyzer(model Model, cacheTTL time.Duration, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		model:  model,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	if cacheTTL > 0 {
		a.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return a
}

// Available reports whether a model is configured.
func (a *Analyzer) Available() bool {
	return a.model != nil
}

func (a *Analyzer) generate(ctx context.Context, prompt string, img *imaging.Image) (string, error) {
	if a.model == nil {
		return "", ErrUnavailable
	}

	var (
		text string
		err  error
	)
	if img != nil {
		text, err = a.model.GenerateWithImage(ctx, prompt, *img)
	} else {
		text, err = a.model.GenerateText(ctx, prompt)
	}
	if err != nil {
		return "", upstreamError(err)
	}
	a.logger.Debug("model response received", "preview", truncate(text, 100))
	return text, nil
}

func cacheKey(kind string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(parts, "\x00"))))
	return kind + ":" + hex.EncodeToString(sum[:])
}

func cloneFood(r *nutrition.FoodAnalysisResult) *nutrition.FoodAnalysisResult {
	c := *r
	c.Ingredients = slices.Clone(r.Ingredients)
	c.Warnings = slices.Clone(r.Warnings)
	c.NutritionInfo.VitaminsAndMinerals = maps.Clone(r.NutritionInfo.VitaminsAndMinerals)
	if r.HealthScore != nil {
		score := *r.HealthScore
		c.HealthScore = &score
	}
	return &c
}

func (a *Analyzer) cachedFood(key string) (*nutrition.FoodAnalysisResult, bool) {
	if a.cache == nil {
		return nil, false
	}
	v, ok := a.cache.Get(key)
	if !ok {
		return nil, false
	}
	r := cloneFood(v.(*nutrition.FoodAnalysisResult))
	r.ID = a.newID()
	r.Timestamp = a.now()
	return r, true
}

func (a *Analyzer) storeFood(key string, r *nutrition.FoodAnalysisResult) {
	if a.cache != nil && r.Error == "" {
		a.cache.SetDefault(key, cloneFood(r))
	}
}

// AnalyzeFoodText analyses a free-text food description.
func (a *Analyzer) AnalyzeFoodText(ctx context.Context, description string) (*nutrition.FoodAnalysisResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, invalidInput("Food description cannot be empty")
	}

	key := cacheKey("food", description)
	if r, ok := a.cachedFood(key); ok {
		a.logger.Info("food text analysis served from cache", "food_name", r.FoodName)
		return r, nil
	}

	text, err := a.generate(ctx, FoodTextPrompt(description), nil)
	if err != nil {
		return nil, err
	}
	result, err := parseFoodResponse(text, description)
	if err != nil {
		return nil, err
	}
	result.ID = a.newID()
	result.Timestamp = a.now()

	a.storeFood(key, result)
	a.logger.Info("food text analysis complete", "food_name", result.FoodName, "calories", result.NutritionInfo.Calories)
	return result, nil
}

// AnalyzeFoodImage analyses the food shown in an image.
func (a *Analyzer) AnalyzeFoodImage(ctx context.Context, img imaging.Image) (*nutrition.FoodAnalysisResult, error) {
	if len(img.Data) == 0 {
		return nil, &Error{Kind: KindInvalidImage, Message: "Image file is empty"}
	}

	text, err := a.generate(ctx, FoodImagePrompt(), &img)
	if err != nil {
		return nil, err
	}
	result, err := parseFoodResponse(text, DefaultImageFoodName)
	if err != nil {
		return nil, err
	}
	result.ID = a.newID()
	result.Timestamp = a.now()

	a.logger.Info("food image analysis complete", "food_name", result.FoodName, "calories", result.NutritionInfo.Calories)
	return result, nil
}

// AnalyzeNutritionLabel reads a nutrition label image and scales it to servings.
func (a *Analyzer) AnalyzeNutritionLabel(ctx context.Context, img imaging.Image, servings float64) (*nutrition.FoodAnalysisResult, error) {
	if len(img.Data) == 0 {
		return nil, &Error{Kind: KindInvalidImage, Message: "Image file is empty"}
	}
	if servings <= 0 {
		return nil, invalidInput("Servings must be greater than 0")
	}

	text, err := a.generate(ctx, NutritionLabelPrompt(servings), &img)
	if err != nil {
		return nil, err
	}
	result, err := parseFoodResponse(text, DefaultLabelFoodName)
	if err != nil {
		return nil, err
	}
	result.ID = a.newID()
	result.Timestamp = a.now()

	a.logger.Info("nutrition label analysis complete", "food_name", result.FoodName, "servings", servings)
	return result, nil
}

// CorrectFoodAnalysis amends a previous food analysis using the user's comment.
// The corrected result keeps the previous id and image.
func (a *Analyzer) CorrectFoodAnalysis(ctx context.Context, previous nutrition.FoodAnalysisResult, comment string) (*nutrition.FoodAnalysisResult, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, invalidInput("User comment cannot be empty")
	}

	prompt, err := FoodCorrectionPrompt(previous, comment)
	if err != nil {
		return nil, err
	}
	text, err := a.generate(ctx, prompt, nil)
	if err != nil {
		return nil, err
	}
	result, err := parseFoodResponse(text, previous.FoodName)
	if err != nil {
		return nil, err
	}
	a.keepIdentity(result, previous)

	a.logger.Info("food correction complete", "id", result.ID, "food_name", result.FoodName)
	return result, nil
}

// CorrectNutritionLabel amends a nutrition label analysis for the given servings.
func (a *Analyzer) CorrectNutritionLabel(ctx context.Context, previous nutrition.FoodAnalysisResult, comment string, servings float64) (*nutrition.FoodAnalysisResult, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, invalidInput("User comment cannot be empty")
	}
	if servings <= 0 {
		return nil, invalidInput("Servings must be greater than 0")
	}

	text, err := a.generate(ctx, NutritionLabelCorrectionPrompt(previous, comment, servings), nil)
	if err != nil {
		return nil, err
	}
	result, err := parseFoodResponse(text, previous.FoodName)
	if err != nil {
		return nil, err
	}
	a.keepIdentity(result, previous)

	a.logger.Info("nutrition label correction complete", "id", result.ID, "servings", servings)
	return result, nil
}

func (a *Analyzer) keepIdentity(result *nutrition.FoodAnalysisResult, previous nutrition.FoodAnalysisResult) {
	result.ID = previous.ID
	if result.ID == "" {
		result.ID = a.newID()
	}
	if result.FoodImageURL == "" {
		result.FoodImageURL = previous.FoodImageURL
	}
	result.Timestamp = a.now()
}

// AnalyzeExercise estimates the calories burned by a described exercise.
func (a *Analyzer) AnalyzeExercise(ctx context.Context, description string, metrics nutrition.HealthMetrics) (*nutrition.ExerciseAnalysisResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, invalidInput("Exercise description cannot be empty")
	}

	key := cacheKey("exercise", description, HealthInfo(metrics, ""))
	if a.cache != nil {
		if v, ok := a.cache.Get(key); ok {
			r := *v.(*nutrition.ExerciseAnalysisResult)
			r.ID = a.newID()
			r.OriginalInput = description
			r.Timestamp = a.now()
			a.logger.Info("exercise analysis served from cache", "exercise_type", r.ExerciseType)
			return &r, nil
		}
	}

	text, err := a.generate(ctx, ExercisePrompt(description, metrics), nil)
	if err != nil {
		return nil, err
	}
	result, err := parseExerciseResponse(text)
	if err != nil {
		return nil, err
	}
	result.ID = a.newID()
	result.OriginalInput = description
	result.Timestamp = a.now()

	if a.cache != nil && result.Error == "" {
		cached := *result
		a.cache.SetDefault(key, &cached)
	}
	a.logger.Info("exercise analysis complete", "exercise_type", result.ExerciseType, "calories_burned", result.CaloriesBurned)
	return result, nil
}

// CorrectExerciseAnalysis amends a previous exercise analysis, keeping its id
// and original input.
func (a *Analyzer) CorrectExerciseAnalysis(ctx context.Context, previous nutrition.ExerciseAnalysisResult, comment string, metrics nutrition.HealthMetrics) (*nutrition.ExerciseAnalysisResult, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, invalidInput("User comment cannot be empty")
	}

	prompt, err := ExerciseCorrectionPrompt(previous, comment, metrics)
	if err != nil {
		return nil, err
	}
	text, err := a.generate(ctx, prompt, nil)
	if err != nil {
		return nil, err
	}
	result, err := parseExerciseResponse(text)
	if err != nil {
		return nil, err
	}

	result.ID = previous.ID
	if result.ID == "" {
		result.ID = a.newID()
	}
	result.OriginalInput = previous.OriginalInput
	result.Timestamp = a.now()

	a.logger.Info("exercise correction complete", "id", result.ID, "calories_burned", result.CaloriesBurned)
	return result, nil
}
