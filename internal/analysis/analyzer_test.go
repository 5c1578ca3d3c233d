package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pockeat/internal/nutrition"
	"pockeat/internal/platform/imaging"
)

// mockModel is a mock of a language model.
type mockModel struct {
	response    string
	returnError error
	prompts     []string
	images      []imaging.Image
}

// GenerateText mocks the GenerateText method.
func (m *mockModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.returnError != nil {
		return "", m.returnError
	}
	return m.response, nil
}

// GenerateWithImage mocks the GenerateWithImage method.
func (m *mockModel) GenerateWithImage(ctx context.Context, prompt string, img imaging.Image) (string, error) {
	m.images = append(m.images, img)
	return m.GenerateText(ctx, prompt)
}

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(model Model, ttl time.Duration) *Analyzer {
	a := NewAnalyzer(model, ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return fixedTime }
	n := 0
	a.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return a
}

const ramenResponse = `{"food_name": "Ramen", "ingredients": [{"name": "noodles", "servings": 120}], "nutrition_info": {"calories": 550, "sodium": 1800, "sugar": 4}, "warnings": []}`

func TestAnalyzeFoodText(t *testing.T) {
	model := &mockModel{response: ramenResponse}
	a := newTestAnalyzer(model, 0)

	result, err := a.AnalyzeFoodText(context.Background(), "  a bowl of ramen ")
	require.NoError(t, err)

	assert.Equal(t, "id-1", result.ID)
	assert.Equal(t, fixedTime, result.Timestamp)
	assert.Equal(t, "Ramen", result.FoodName)
	assert.Equal(t, []string{nutrition.HighSodiumWarning}, result.Warnings)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], `"a bowl of ramen"`)
}

func TestAnalyzeFoodText_Validation(t *testing.T) {
	model := &mockModel{response: ramenResponse}
	a := newTestAnalyzer(model, 0)

	_, err := a.AnalyzeFoodText(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidInput))
	assert.Empty(t, model.prompts)
}

func TestAnalyzeFoodText_Cache(t *testing.T) {
	model := &mockModel{response: ramenResponse}
	a := newTestAnalyzer(model, time.Minute)

	first, err := a.AnalyzeFoodText(context.Background(), "Ramen")
	require.NoError(t, err)
	first.Warnings = append(first.Warnings, "mutated")

	second, err := a.AnalyzeFoodText(context.Background(), "ramen")
	require.NoError(t, err)

	assert.Len(t, model.prompts, 1)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "Ramen", second.FoodName)
	assert.Equal(t, []string{nutrition.HighSodiumWarning}, second.Warnings)
}

func TestAnalyzeFoodText_ErrorResultsNotCached(t *testing.T) {
	model := &mockModel{response: "sorry, I don't know"}
	a := newTestAnalyzer(model, time.Minute)

	for i := 0; i < 2; i++ {
		result, err := a.AnalyzeFoodText(context.Background(), "mystery")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Error)
		assert.Equal(t, "mystery", result.FoodName)
	}
	assert.Len(t, model.prompts, 2)
}

func TestAnalyzer_ModelFailures(t *testing.T) {
	t.Run("upstream error", func(t *testing.T) {
		cause := errors.New("quota exceeded")
		a := newTestAnalyzer(&mockModel{returnError: cause}, 0)

		_, err := a.AnalyzeFoodText(context.Background(), "apple")
		require.Error(t, err)
		assert.True(t, IsKind(err, KindUpstream))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("deadline stays detectable", func(t *testing.T) {
		a := newTestAnalyzer(&mockModel{returnError: context.DeadlineExceeded}, 0)

		_, err := a.AnalyzeExercise(context.Background(), "ran 5k", nutrition.HealthMetrics{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("no model", func(t *testing.T) {
		a := newTestAnalyzer(nil, 0)
		assert.False(t, a.Available())

		_, err := a.AnalyzeFoodImage(context.Background(), imaging.Image{Data: []byte{1}, Format: "png"})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindUnavailable))
	})
}

func TestAnalyzeFoodImage(t *testing.T) {
	model := &mockModel{response: `{"nutrition_info": {"calories": 80}}`}
	a := newTestAnalyzer(model, 0)
	img := imaging.Image{Data: []byte{1, 2, 3}, Format: "jpeg"}

	result, err := a.AnalyzeFoodImage(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, DefaultImageFoodName, result.FoodName)
	assert.Equal(t, 80.0, result.NutritionInfo.Calories)
	require.Len(t, model.images, 1)
	assert.Equal(t, img, model.images[0])

	_, err = a.AnalyzeFoodImage(context.Background(), imaging.Image{})
	assert.True(t, IsKind(err, KindInvalidImage))
}

func TestAnalyzeNutritionLabel(t *testing.T) {
	model := &mockModel{response: `{"nutrition_info": {"calories": 240}}`}
	a := newTestAnalyzer(model, 0)
	img := imaging.Image{Data: []byte{1}, Format: "png"}

	result, err := a.AnalyzeNutritionLabel(context.Background(), img, 2.5)
	require.NoError(t, err)
	assert.Equal(t, DefaultLabelFoodName, result.FoodName)
	assert.Contains(t, model.prompts[0], "The user will consume 2.5 servings")

	_, err = a.AnalyzeNutritionLabel(context.Background(), img, 0)
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestCorrectFoodAnalysis(t *testing.T) {
	model := &mockModel{response: `{"ingredients": [{"name": "chicken", "servings": 150}], "nutrition_info": {"calories": 300}}`}
	a := newTestAnalyzer(model, 0)
	previous := nutrition.FoodAnalysisResult{
		ID:           "original-id",
		FoodName:     "Beef stir fry",
		Ingredients:  []nutrition.Ingredient{{Name: "beef", Servings: 150}},
		FoodImageURL: "/images/abc.jpg",
	}

	result, err := a.CorrectFoodAnalysis(context.Background(), previous, "this is chicken, not beef")
	require.NoError(t, err)
	assert.Equal(t, "original-id", result.ID)
	assert.Equal(t, "Beef stir fry", result.FoodName)
	assert.Equal(t, "/images/abc.jpg", result.FoodImageURL)
	assert.Contains(t, model.prompts[0], `"name": "beef"`)
	assert.NotContains(t, model.prompts[0], "original-id")

	_, err = a.CorrectFoodAnalysis(context.Background(), previous, " ")
	assert.True(t, IsKind(err, KindInvalidInput))
}

func TestCorrectNutritionLabel(t *testing.T) {
	model := &mockModel{response: `{"food_name": "Granola", "nutrition_info": {"calories": 400}}`}
	a := newTestAnalyzer(model, 0)
	previous := nutrition.FoodAnalysisResult{
		ID:          "label-1",
		FoodName:    "Granola",
		Ingredients: []nutrition.Ingredient{{Name: "Oats", Servings: 40}},
		Warnings:    []string{},
	}

	result, err := a.CorrectNutritionLabel(context.Background(), previous, "two servings", 2)
	require.NoError(t, err)
	assert.Equal(t, "label-1", result.ID)
	assert.Contains(t, model.prompts[0], "Oats: 40g")
	assert.Contains(t, model.prompts[0], "for 2 servings")
}

func TestAnalyzeExercise(t *testing.T) {
	model := &mockModel{response: `{"exercise_type": "Running", "calories_burned": 320, "duration": "30 minutes", "intensity": "High", "met_value": 9.8}`}
	a := newTestAnalyzer(model, time.Minute)
	weight := 70.0
	age := 30
	metrics := nutrition.HealthMetrics{WeightKg: &weight, Age: &age, Gender: "male"}

	result, err := a.AnalyzeExercise(context.Background(), "ran 5k in 30 minutes, hard", metrics)
	require.NoError(t, err)
	assert.Equal(t, "id-1", result.ID)
	assert.Equal(t, "high", result.Intensity)
	assert.Equal(t, "ran 5k in 30 minutes, hard", result.OriginalInput)
	assert.Contains(t, model.prompts[0], "User health data: Weight: 70 kg, Age: 30 years, Gender: male")

	cached, err := a.AnalyzeExercise(context.Background(), "ran 5k in 30 minutes, hard", metrics)
	require.NoError(t, err)
	assert.Equal(t, "id-2", cached.ID)
	assert.Len(t, model.prompts, 1)

	_, err = a.AnalyzeExercise(context.Background(), "ran 5k in 30 minutes, hard", nutrition.HealthMetrics{})
	require.NoError(t, err)
	assert.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "Assume average adult metrics for calculations")
}

func TestAnalyzeExercise_CacheHitKeepsCallerInput(t *testing.T) {
	model := &mockModel{response: `{"exercise_type": "Running", "calories_burned": 320, "duration": "30 minutes", "intensity": "high", "met_value": 9.8}`}
	a := newTestAnalyzer(model, time.Minute)

	first, err := a.AnalyzeExercise(context.Background(), "Ran 5K", nutrition.HealthMetrics{})
	require.NoError(t, err)
	assert.Equal(t, "Ran 5K", first.OriginalInput)

	second, err := a.AnalyzeExercise(context.Background(), "ran 5k", nutrition.HealthMetrics{})
	require.NoError(t, err)
	assert.Len(t, model.prompts, 1)
	assert.Equal(t, "ran 5k", second.OriginalInput)
	assert.Equal(t, "Ran 5K", first.OriginalInput)
}

func TestCorrectExerciseAnalysis(t *testing.T) {
	model := &mockModel{response: `{"exercise_type": "Running", "calories_burned": 450, "duration": "45 minutes", "intensity": "medium", "met_value": 8}`}
	a := newTestAnalyzer(model, 0)
	previous := nutrition.ExerciseAnalysisResult{
		ID:            "ex-1",
		ExerciseType:  "Running",
		Duration:      "30 minutes",
		Intensity:     "high",
		OriginalInput: "ran for 30 minutes",
	}

	result, err := a.CorrectExerciseAnalysis(context.Background(), previous, "it was 45 minutes", nutrition.HealthMetrics{})
	require.NoError(t, err)
	assert.Equal(t, "ex-1", result.ID)
	assert.Equal(t, "ran for 30 minutes", result.OriginalInput)
	assert.Equal(t, 450.0, result.CaloriesBurned)
	assert.Contains(t, model.prompts[0], "No health metrics provided")
	assert.Contains(t, model.prompts[0], `"ran for 30 minutes"`)
}

func TestError_StatusCode(t *testing.T) {
	assert.Equal(t, 400, (&Error{Kind: KindInvalidInput}).StatusCode())
	assert.Equal(t, 400, (&Error{Kind: KindInvalidImage}).StatusCode())
	assert.Equal(t, 422, (&Error{Kind: KindParsing}).StatusCode())
	assert.Equal(t, 502, (&Error{Kind: KindUpstream}).StatusCode())
	assert.Equal(t, 503, ErrUnavailable.StatusCode())
	assert.Equal(t, 500, (&Error{}).StatusCode())
}
