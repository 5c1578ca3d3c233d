package nutrition

import (
	"encoding/json"
	"strings"
	"time"
)

// Standard warning texts and the thresholds that trigger them.
const (
	HighSodiumWarning = "High sodium content"
	HighSugarWarning  = "High sugar content"

	HighSodiumThreshold = 500.0 // mg
	HighSugarThreshold  = 20.0  // g
)

// Ingredient is a single component of an analysed food.
type Ingredient struct {
	Name     string  `json:"name"`
	Servings float64 `json:"servings"` // grams
}

// NutritionInfo holds the macro and micro nutrients of a food.
type NutritionInfo struct {
	Calories            float64            `json:"calories"`
	Protein             float64            `json:"protein"`
	Carbs               float64            `json:"carbs"`
	Fat                 float64            `json:"fat"`
	SaturatedFat        float64            `json:"saturated_fat"`
	Sodium              float64            `json:"sodium"`
	Fiber               float64            `json:"fiber"`
	Sugar               float64            `json:"sugar"`
	Cholesterol         float64            `json:"cholesterol"`
	NutritionDensity    float64            `json:"nutrition_density"`
	VitaminsAndMinerals map[string]float64 `json:"vitamins_and_minerals"`
}

// FoodAnalysisResult is the record returned by every food analysis.
type FoodAnalysisResult struct {
	ID            string        `json:"id"`
	FoodName      string        `json:"food_name"`
	Ingredients   []Ingredient  `json:"ingredients"`
	NutritionInfo NutritionInfo `json:"nutrition_info"`
	HealthScore   *float64      `json:"health_score"`
	Warnings      []string      `json:"warnings"`
	FoodImageURL  string        `json:"food_image_url,omitempty"`
	Error         string        `json:"error,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewFoodErrorResult builds an empty result that only carries an error message.
func NewFoodErrorResult(foodName, message string) *FoodAnalysisResult {
	return &FoodAnalysisResult{
		FoodName:      foodName,
		Ingredients:   []Ingredient{},
		NutritionInfo: NutritionInfo{VitaminsAndMinerals: map[string]float64{}},
		Warnings:      []string{},
		Error:         message,
	}
}

// AddStandardWarnings appends the sodium and sugar warnings implied by the
// nutrition values, skipping any that are already present.
func (r *FoodAnalysisResult) AddStandardWarnings() {
	if r.NutritionInfo.Sodium > HighSodiumThreshold {
		r.addWarning(HighSodiumWarning)
	}
	if r.NutritionInfo.Sugar > HighSugarThreshold {
		r.addWarning(HighSugarWarning)
	}
}

func (r *FoodAnalysisResult) addWarning(w string) {
	for _, existing := range r.Warnings {
		if strings.EqualFold(existing, w) {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
}

// ExerciseAnalysisResult is the record returned by exercise analyses.
type ExerciseAnalysisResult struct {
	ID             string    `json:"id"`
	ExerciseType   string    `json:"exercise_type"`
	CaloriesBurned float64   `json:"calories_burned"`
	Duration       string    `json:"duration"`
	Intensity      string    `json:"intensity"`
	METValue       float64   `json:"met_value"`
	OriginalInput  string    `json:"original_input,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for ExerciseAnalysisResult.
func (r *ExerciseAnalysisResult) UnmarshalJSON(data []byte) error {
	type Alias ExerciseAnalysisResult // Create an alias to avoid infinite recursion
	aux := &struct {
		Intensity string `json:"intensity"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Intensity = NormalizeIntensity(aux.Intensity)

	return nil
}

// NewExerciseErrorResult builds an "unknown" exercise result carrying an error.
func NewExerciseErrorResult(message string) *ExerciseAnalysisResult {
	return &ExerciseAnalysisResult{
		ExerciseType: "unknown",
		Duration:     "unknown",
		Intensity:    "unknown",
		Error:        message,
	}
}

// NormalizeIntensity lower-cases an intensity and maps anything outside
// low/medium/high to "unknown".
func NormalizeIntensity(intensity string) string {
	switch v := strings.ToLower(strings.TrimSpace(intensity)); v {
	case "low", "medium", "high":
		return v
	default:
		return "unknown"
	}
}

// FoodAnalysisRequest is the body of a text food analysis.
type FoodAnalysisRequest struct {
	Description string `json:"description" binding:"required"`
}

// FoodCorrectionRequest asks for a previous food analysis to be corrected.
type FoodCorrectionRequest struct {
	PreviousResult *FoodAnalysisResult `json:"previous_result" binding:"required"`
	UserComment    string              `json:"user_comment" binding:"required"`
	Servings       *float64            `json:"servings"`
}

// ServingsOrDefault returns the requested servings, or 1 when unset.
func (r FoodCorrectionRequest) ServingsOrDefault() float64 {
	if r.Servings == nil {
		return 1.0
	}
	return *r.Servings
}

// HealthMetrics are the optional user measurements used for calorie estimates.
type HealthMetrics struct {
	WeightKg *float64 `json:"user_weight_kg"`
	HeightCm *float64 `json:"user_height_cm"`
	Age      *int     `json:"user_age"`
	Gender   string   `json:"user_gender"`
}

// ExerciseAnalysisRequest is the body of an exercise analysis.
type ExerciseAnalysisRequest struct {
	Description string `json:"description" binding:"required"`
	HealthMetrics
}

// ExerciseCorrectionRequest asks for a previous exercise analysis to be corrected.
type ExerciseCorrectionRequest struct {
	PreviousResult *ExerciseAnalysisResult `json:"previous_result" binding:"required"`
	UserComment    string                  `json:"user_comment" binding:"required"`
	HealthMetrics
}
