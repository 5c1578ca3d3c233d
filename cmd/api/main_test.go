package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pockeat/internal/config"
	"pockeat/internal/nutrition"
	"pockeat/internal/platform/imaging"
	"pockeat/internal/platform/localllm"
)

// scriptedModel answers every prompt with a fixed response.
type scriptedModel struct {
	response string
	calls    int
}

func (m *scriptedModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.response, nil
}

func (m *scriptedModel) GenerateWithImage(ctx context.Context, prompt string, img imaging.Image) (string, error) {
	return m.GenerateText(ctx, prompt)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		LLMProvider:    config.ProviderGemini,
		Environment:    "test",
		ImageDir:       t.TempDir(),
		CORSOrigins:    []string{"*"},
		RequestTimeout: 5 * time.Second,
		CacheTTL:       time.Minute,
	}
}

func newTestStore(t *testing.T) *nutrition.SQLStore {
	t.Helper()
	store, err := nutrition.NewSQLStore("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestFoodAnalysisIsPersisted(t *testing.T) {
	model := &scriptedModel{response: "Here you go:\n```json\n" + `{
  "food_name": "Fried rice",
  "ingredients": [{"name": "rice", "servings": 200}, {"name": "egg", "servings": 50},],
  "nutrition_info": {"calories": 520, "protein": 14, "carbs": 80, "fat": 16, "sodium": 900, "fiber": 2, "sugar": 3},
  "warnings": []
}` + "\n```"}
	r := newRouter(testConfig(t), model, newTestStore(t), discardLogger())

	body, _ := json.Marshal(map[string]string{"description": "a plate of fried rice"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/food/analyze/text", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result nutrition.FoodAnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Fried rice", result.FoodName)
	assert.Len(t, result.Ingredients, 2)
	assert.Equal(t, []string{nutrition.HighSodiumWarning}, result.Warnings)
	assert.NotEmpty(t, result.ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/food/"+result.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fried rice")
}

func TestExerciseCorrectionKeepsID(t *testing.T) {
	model := &scriptedModel{response: `{"exercise_type": "Running", "calories_burned": 300, "duration": "30 minutes", "intensity": "High", "met_value": 9.8}`}
	r := newRouter(testConfig(t), model, newTestStore(t), discardLogger())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/exercise/analyze", strings.NewReader(`{"description": "ran for 30 minutes at a hard pace", "user_weight_kg": 70}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first nutrition.ExerciseAnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "high", first.Intensity)

	model.response = `{"exercise_type": "Running", "calories_burned": 450, "duration": "45 minutes", "intensity": "high", "met_value": 9.8}`
	payload, _ := json.Marshal(map[string]any{"previous_result": first, "user_comment": "it was 45 minutes"})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/exercise/correct", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var corrected nutrition.ExerciseAnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &corrected))
	assert.Equal(t, first.ID, corrected.ID)
	assert.Equal(t, 450.0, corrected.CaloriesBurned)
	assert.Equal(t, first.OriginalInput, corrected.OriginalInput)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/exercise", nil))
	var history []nutrition.ExerciseAnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, 450.0, history[0].CaloriesBurned)
}

func TestDegradedWithoutModel(t *testing.T) {
	cfg := testConfig(t)
	model, closeModel, err := newModel(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Nil(t, model)
	closeModel()

	r := newRouter(cfg, model, newTestStore(t), discardLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Contains(t, w.Body.String(), "degraded")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/exercise/analyze", strings.NewReader(`{"description": "swam"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewModel_Local(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMProvider = config.ProviderLocal

	model, closeModel, err := newModel(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer closeModel()
	assert.IsType(t, &localllm.Client{}, model)
}

type failingCloser struct{ closed int }

func (c *failingCloser) Close() error {
	c.closed++
	return errors.New("connection already closed")
}

func TestCloseLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := &failingCloser{}

	closeLogged(logger, "gemini client", c)()
	assert.Equal(t, 1, c.closed)
	assert.Contains(t, buf.String(), `msg="failed to close gemini client"`)
	assert.Contains(t, buf.String(), "connection already closed")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Environment: "production", LogLevel: slog.LevelInfo}
	newLogger(cfg, &buf).Info("hello", "key", "value")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), buf.String())

	buf.Reset()
	cfg = config.Config{Environment: "development", LogLevel: slog.LevelWarn}
	logger := newLogger(cfg, &buf)
	logger.Info("suppressed")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
