// Package store implements the fitness.Store persistence collaborator on
// SQLite. One Store instance is shared by every connection handler; all
// concurrency safety is delegated to database/sql's connection pooling and
// SQLite's busy-timeout handling.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"

	apperrors "github.com/MarkKirilenko/tranning-app/pkg/errors"
	"github.com/MarkKirilenko/tranning-app/pkg/fitness"
)

// historyLimit caps how many workout history entries a single query returns.
const historyLimit = 10

// sqb is the SQLite statement builder with '?' placeholders.
var sqb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Store implements fitness.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. The caller is responsible for
// having applied migrations; tests use this with sqlmock.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pending migrations and returns a ready Store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindUser(ctx context.Context, username string) (*fitness.User, error) {
	query, args, err := sqb.
		Select("id", "username", "password", "phone", "dob").
		From("users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	var user fitness.User
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Username, &user.Password, &user.Phone, &user.DOB)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, username, password, phone, dob string) error {
	query, args, err := sqb.
		Insert("users").
		Columns("username", "password", "phone", "dob").
		Values(username, password, phone, dob).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return &apperrors.DuplicateUserError{Username: username}
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

func (s *Store) QueryExercises(ctx context.Context, condition, level, goal string) ([]fitness.Exercise, error) {
	query, args, err := sqb.
		Select("name", "description", "muscle_group", "level", "equipment", "duration_minutes").
		From("exercises").
		Where(sq.Eq{"condition": condition, "level": level, "goal": goal}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building exercise query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var exercises []fitness.Exercise
	for rows.Next() {
		var e fitness.Exercise
		if err := rows.Scan(&e.Name, &e.Description, &e.MuscleGroup, &e.Level, &e.Equipment, &e.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scanning exercise row: %w", err)
		}
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exercise rows: %w", err)
	}

	return exercises, nil
}

func (s *Store) RecordProgress(ctx context.Context, userID int64, exerciseName string) error {
	query, args, err := sqb.
		Insert("progress").
		Columns("user_id", "exercise_name").
		Values(userID, exerciseName).
		ToSql()
	if err != nil {
		return fmt.Errorf("building progress insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting progress: %w", err)
	}

	return nil
}

func (s *Store) SaveWorkoutHistory(ctx context.Context, userID int64, workoutName string, exercises []any, durationMinutes int64) (int64, error) {
	exercisesJSON, err := encodeExercises(exercises)
	if err != nil {
		return 0, err
	}

	query, args, err := sqb.
		Insert("workout_history").
		Columns("user_id", "workout_name", "exercises", "duration_minutes").
		Values(userID, workoutName, exercisesJSON, durationMinutes).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building history insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting workout history: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading history id: %w", err)
	}
	return id, nil
}

func (s *Store) ListWorkoutHistory(ctx context.Context, userID int64) ([]fitness.WorkoutEntry, error) {
	query, args, err := sqb.
		Select("id", "workout_name", "exercises", "duration_minutes", "completed_at").
		From("workout_history").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("completed_at DESC").
		Limit(historyLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying workout history: %w", err)
	}
	defer rows.Close()

	var entries []fitness.WorkoutEntry
	for rows.Next() {
		var entry fitness.WorkoutEntry
		var exercisesJSON string
		if err := rows.Scan(&entry.ID, &entry.WorkoutName, &exercisesJSON, &entry.DurationMinutes, &entry.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entry.Exercises = decodeExercises(exercisesJSON)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return entries, nil
}

func (s *Store) ListUserPlans(ctx context.Context, userID int64) ([]fitness.SavedPlan, error) {
	query, args, err := sqb.
		Select("id", "name", "level", "goal", "condition", "exercises", "created_at").
		From("saved_plans").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building plan query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	var plans []fitness.SavedPlan
	for rows.Next() {
		plan, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plan rows: %w", err)
	}

	return plans, nil
}

func (s *Store) FindPlanByID(ctx context.Context, planID, userID int64) (*fitness.SavedPlan, error) {
	query, args, err := sqb.
		Select("id", "name", "level", "goal", "condition", "exercises", "created_at").
		From("saved_plans").
		Where(sq.Eq{"id": planID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building plan query: %w", err)
	}

	plan, err := scanPlan(s.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Store) SaveUserPlan(ctx context.Context, userID int64, name, level, goal, condition string, exercises []any) (int64, error) {
	exercisesJSON, err := encodeExercises(exercises)
	if err != nil {
		return 0, err
	}

	query, args, err := sqb.
		Insert("saved_plans").
		Columns("user_id", "name", "level", "goal", "condition", "exercises").
		Values(userID, name, level, goal, condition, exercisesJSON).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building plan insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting plan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading plan id: %w", err)
	}
	return id, nil
}

func (s *Store) ListProgress(ctx context.Context, userID int64) ([]fitness.ProgressEntry, error) {
	query, args, err := sqb.
		Select("exercise_name", "recorded_at").
		From("progress").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("recorded_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building progress query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying progress: %w", err)
	}
	defer rows.Close()

	var entries []fitness.ProgressEntry
	for rows.Next() {
		var entry fitness.ProgressEntry
		if err := rows.Scan(&entry.ExerciseName, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning progress row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating progress rows: %w", err)
	}

	return entries, nil
}

func scanPlan(scan func(...any) error) (*fitness.SavedPlan, error) {
	var plan fitness.SavedPlan
	var exercisesJSON string

	err := scan(&plan.ID, &plan.Name, &plan.Level, &plan.Goal, &plan.Condition, &exercisesJSON, &plan.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning plan row: %w", err)
	}

	plan.Exercises = decodeExercises(exercisesJSON)
	return &plan, nil
}

func encodeExercises(exercises []any) (string, error) {
	if exercises == nil {
		exercises = []any{}
	}
	raw, err := json.Marshal(exercises)
	if err != nil {
		return "", fmt.Errorf("encoding exercise list: %w", err)
	}
	return string(raw), nil
}

// decodeExercises is lenient: a row with corrupt JSON decodes as an empty
// list rather than failing the whole query.
func decodeExercises(raw string) []any {
	var exercises []any
	if err := json.Unmarshal([]byte(raw), &exercises); err != nil || exercises == nil {
		return []any{}
	}
	return exercises
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Verify interface compliance.
var _ fitness.Store = (*Store)(nil)
