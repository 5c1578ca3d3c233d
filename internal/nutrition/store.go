package nutrition

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store defines the interface for analysis history operations.
type Store interface {
	SaveFoodAnalysis(ctx context.Context, result *FoodAnalysisResult, imageHash string) error
	GetFoodAnalysis(ctx context.Context, id string) (*FoodAnalysisResult, error)
	GetFoodAnalysisByImageHash(ctx context.Context, imageHash string) (*FoodAnalysisResult, error)
	ListFoodAnalyses(ctx context.Context, limit int) ([]*FoodAnalysisResult, error)
	SaveExerciseAnalysis(ctx context.Context, result *ExerciseAnalysisResult) error
	GetExerciseAnalysis(ctx context.Context, id string) (*ExerciseAnalysisResult, error)
	ListExerciseAnalyses(ctx context.Context, limit int) ([]*ExerciseAnalysisResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLStore implements Store on top of PostgreSQL or SQLite.
type SQLStore struct {
	db *sqlx.DB
}

var schema = []string{`
	CREATE TABLE IF NOT EXISTS food_analyses (
		id TEXT PRIMARY KEY,
		image_hash TEXT NOT NULL DEFAULT '',
		food_name TEXT NOT NULL,
		ingredients JSONB,
		nutrition_info JSONB,
		warnings JSONB,
		health_score DOUBLE PRECISION,
		food_image_url TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`, `
	CREATE INDEX IF NOT EXISTS idx_food_analyses_image_hash ON food_analyses(image_hash);`, `
	CREATE TABLE IF NOT EXISTS exercise_analyses (
		id TEXT PRIMARY KEY,
		original_input TEXT NOT NULL DEFAULT '',
		exercise_type TEXT NOT NULL,
		calories_burned DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration TEXT NOT NULL DEFAULT '',
		intensity TEXT NOT NULL DEFAULT '',
		met_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`,
}

// NewSQLStore opens the database and creates the schema if needed.
// driver is either "postgres" or "sqlite".
func NewSQLStore(driver, dataSourceName string) (*SQLStore, error) {
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database type %q", driver)
	}

	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// A single connection keeps ":memory:" databases coherent and avoids
		// SQLITE_BUSY on concurrent writers.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLStore{db: db}, nil
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type foodRow struct {
	ID            string          `db:"id"`
	ImageHash     string          `db:"image_hash"`
	FoodName      string          `db:"food_name"`
	Ingredients   []byte          `db:"ingredients"`
	NutritionInfo []byte          `db:"nutrition_info"`
	Warnings      []byte          `db:"warnings"`
	HealthScore   sql.NullFloat64 `db:"health_score"`
	FoodImageURL  string          `db:"food_image_url"`
	Error         string          `db:"error"`
	CreatedAt     time.Time       `db:"created_at"`
}

const foodColumns = "id, image_hash, food_name, ingredients, nutrition_info, warnings, health_score, food_image_url, error, created_at"

func (row *foodRow) toResult() (*FoodAnalysisResult, error) {
	r := &FoodAnalysisResult{
		ID:           row.ID,
		FoodName:     row.FoodName,
		FoodImageURL: row.FoodImageURL,
		Error:        row.Error,
		Timestamp:    row.CreatedAt,
	}
	if row.HealthScore.Valid {
		score := row.HealthScore.Float64
		r.HealthScore = &score
	}
	if err := unmarshalColumn(row.Ingredients, &r.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	if err := unmarshalColumn(row.NutritionInfo, &r.NutritionInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nutrition info: %w", err)
	}
	if err := unmarshalColumn(row.Warnings, &r.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	if r.Ingredients == nil {
		r.Ingredients = []Ingredient{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return r, nil
}

func unmarshalColumn(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// SaveFoodAnalysis inserts or replaces a food analysis. imageHash may be empty.
func (s *SQLStore) SaveFoodAnalysis(ctx context.Context, result *FoodAnalysisResult, imageHash string) error {
	ingredientsJSON, err := json.Marshal(result.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	nutritionJSON, err := json.Marshal(result.NutritionInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal nutrition info: %w", err)
	}
	warningsJSON, err := json.Marshal(result.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	var healthScore sql.NullFloat64
	if result.HealthScore != nil {
		healthScore = sql.NullFloat64{Float64: *result.HealthScore, Valid: true}
	}

	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := s.db.Rebind(`INSERT INTO food_analyses (` + foodColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			image_hash = excluded.image_hash,
			food_name = excluded.food_name,
			ingredients = excluded.ingredients,
			nutrition_info = excluded.nutrition_info,
			warnings = excluded.warnings,
			health_score = excluded.health_score,
			food_image_url = excluded.food_image_url,
			error = excluded.error,
			created_at = excluded.created_at`)

	_, err = s.db.ExecContext(ctx, query,
		result.ID,
		imageHash,
		result.FoodName,
		string(ingredientsJSON),
		string(nutritionJSON),
		string(warningsJSON),
		healthScore,
		result.FoodImageURL,
		result.Error,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save food analysis: %w", err)
	}
	return nil
}

// GetFoodAnalysis retrieves a food analysis by id.
func (s *SQLStore) GetFoodAnalysis(ctx context.Context, id string) (*FoodAnalysisResult, error) {
	var row foodRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+foodColumns+" FROM food_analyses WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Analysis not found
		}
		return nil, fmt.Errorf("failed to get food analysis: %w", err)
	}
	return row.toResult()
}

// GetFoodAnalysisByImageHash returns the most recent successful analysis of an image.
func (s *SQLStore) GetFoodAnalysisByImageHash(ctx context.Context, imageHash string) (*FoodAnalysisResult, error) {
	var row foodRow
	query := s.db.Rebind("SELECT " + foodColumns + " FROM food_analyses WHERE image_hash = ? AND error = '' ORDER BY created_at DESC LIMIT 1")
	err := s.db.GetContext(ctx, &row, query, imageHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get food analysis by image hash: %w", err)
	}
	return row.toResult()
}

// ListFoodAnalyses returns the latest food analyses, newest first.
func (s *SQLStore) ListFoodAnalyses(ctx context.Context, limit int) ([]*FoodAnalysisResult, error) {
	var rows []foodRow
	query := s.db.Rebind("SELECT " + foodColumns + " FROM food_analyses ORDER BY created_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list food analyses: %w", err)
	}

	results := make([]*FoodAnalysisResult, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toResult()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

type exerciseRow struct {
	ID             string    `db:"id"`
	OriginalInput  string    `db:"original_input"`
	ExerciseType   string    `db:"exercise_type"`
	CaloriesBurned float64   `db:"calories_burned"`
	Duration       string    `db:"duration"`
	Intensity      string    `db:"intensity"`
	METValue       float64   `db:"met_value"`
	Error          string    `db:"error"`
	CreatedAt      time.Time `db:"created_at"`
}

const exerciseColumns = "id, original_input, exercise_type, calories_burned, duration, intensity, met_value, error, created_at"

func (row *exerciseRow) toResult() *ExerciseAnalysisResult {
	return &ExerciseAnalysisResult{
		ID:             row.ID,
		OriginalInput:  row.OriginalInput,
		ExerciseType:   row.ExerciseType,
		CaloriesBurned: row.CaloriesBurned,
		Duration:       row.Duration,
		Intensity:      row.Intensity,
		METValue:       row.METValue,
		Error:          row.Error,
		Timestamp:      row.CreatedAt,
	}
}

// SaveExerciseAnalysis inserts or replaces an exercise analysis.
func (s *SQLStore) SaveExerciseAnalysis(ctx context.Context, result *ExerciseAnalysisResult) error {
	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := s.db.Rebind(`INSERT INTO exercise_analyses (` + exerciseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			original_input = excluded.original_input,
			exercise_type = excluded.exercise_type,
			calories_burned = excluded.calories_burned,
			duration = excluded.duration,
			intensity = excluded.intensity,
			met_value = excluded.met_value,
			error = excluded.error,
			created_at = excluded.created_at`)

	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.OriginalInput,
		result.ExerciseType,
		result.CaloriesBurned,
		result.Duration,
		result.Intensity,
		result.METValue,
		result.Error,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save exercise analysis: %w", err)
	}
	return nil
}

// GetExerciseAnalysis retrieves an exercise analysis by id.
func (s *SQLStore) GetExerciseAnalysis(ctx context.Context, id string) (*ExerciseAnalysisResult, error) {
	var row exerciseRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+exerciseColumns+" FROM exercise_analyses WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get exercise analysis: %w", err)
	}
	return row.toResult(), nil
}

// ListExerciseAnalyses returns the latest exercise analyses, newest first.
func (s *SQLStore) ListExerciseAnalyses(ctx context.Context, limit int) ([]*ExerciseAnalysisResult, error) {
	var rows []exerciseRow
	query := s.db.Rebind("SELECT " + exerciseColumns + " FROM exercise_analyses ORDER BY created_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list exercise analyses: %w", err)
	}

	results := make([]*ExerciseAnalysisResult, 0, len(rows))
	for i := range rows {
		results = append(results, rows[i].toResult())
	}
	return results, nil
}
