package nutrition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddStandardWarnings(t *testing.T) {
	tests := []struct {
		name     string
		sodium   float64
		sugar    float64
		existing []string
		want     []string
	}{
		{"below thresholds", 500, 20, []string{}, []string{}},
		{"high sodium", 501, 5, []string{}, []string{HighSodiumWarning}},
		{"high sugar", 10, 20.5, []string{}, []string{HighSugarWarning}},
		{"both", 900, 40, []string{}, []string{HighSodiumWarning, HighSugarWarning}},
		{"no duplicates", 900, 40, []string{"high sodium content"}, []string{"high sodium content", HighSugarWarning}},
		{"keeps model warnings", 0, 0, []string{"Contains nuts"}, []string{"Contains nuts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFoodErrorResult("test", "")
			r.NutritionInfo.Sodium = tt.sodium
			r.NutritionInfo.Sugar = tt.sugar
			r.Warnings = tt.existing

			r.AddStandardWarnings()
			assert.Equal(t, tt.want, r.Warnings)
		})
	}
}

func TestNormalizeIntensity(t *testing.T) {
	assert.Equal(t, "high", NormalizeIntensity(" High "))
	assert.Equal(t, "medium", NormalizeIntensity("MEDIUM"))
	assert.Equal(t, "low", NormalizeIntensity("low"))
	assert.Equal(t, "unknown", NormalizeIntensity("moderate"))
	assert.Equal(t, "unknown", NormalizeIntensity(""))
}

func TestExerciseAnalysisResult_UnmarshalJSON(t *testing.T) {
	var r ExerciseAnalysisResult
	err := json.Unmarshal([]byte(`{"id": "ex-1", "exercise_type": "Cycling", "calories_burned": 210.5, "duration": "45 minutes", "intensity": "Medium", "met_value": 6.8}`), &r)
	require.NoError(t, err)

	assert.Equal(t, "ex-1", r.ID)
	assert.Equal(t, "Cycling", r.ExerciseType)
	assert.Equal(t, 210.5, r.CaloriesBurned)
	assert.Equal(t, "medium", r.Intensity)
	assert.Equal(t, 6.8, r.METValue)
}

func TestFoodErrorResult_JSON(t *testing.T) {
	r := NewFoodErrorResult("Food Image", "No food detected in image")
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "Food Image", body["food_name"])
	assert.Equal(t, []any{}, body["ingredients"])
	assert.Equal(t, []any{}, body["warnings"])
	assert.Nil(t, body["health_score"])
	assert.Equal(t, "No food detected in image", body["error"])
	assert.NotContains(t, body, "food_image_url")
}

func TestFoodCorrectionRequest_ServingsOrDefault(t *testing.T) {
	var req FoodCorrectionRequest
	assert.Equal(t, 1.0, req.ServingsOrDefault())

	two := 2.0
	req.Servings = &two
	assert.Equal(t, 2.0, req.ServingsOrDefault())
}
