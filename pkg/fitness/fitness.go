// Package fitness holds the domain model and the persistence contract the
// request router delegates to. Storage lives behind the Store interface so
// the transport and routing layers never touch SQL directly.
package fitness

import (
	"context"
	"time"
)

// User is a registered account. Passwords are stored and compared as
// plaintext.
type User struct {
	ID       int64
	Username string
	Password string
	Phone    string
	DOB      string
}

// Exercise is one entry of the exercise catalog, filtered by training
// condition, fitness level and goal.
type Exercise struct {
	Name            string
	Description     string
	MuscleGroup     string
	Level           string
	Equipment       string
	DurationMinutes int64
}

// SavedPlan is a workout plan a user stored for later reuse. Exercises is
// the decoded JSON list exactly as the client submitted it; the server does
// not interpret individual entries.
type SavedPlan struct {
	ID        int64
	Name      string
	Level     string
	Goal      string
	Condition string
	Exercises []any
	CreatedAt time.Time
}

// WorkoutEntry is one completed workout in a user's history.
type WorkoutEntry struct {
	ID              int64
	WorkoutName     string
	Exercises       []any
	DurationMinutes int64
	CompletedAt     time.Time
}

// ProgressEntry records a single completed exercise.
type ProgressEntry struct {
	ExerciseName string
	RecordedAt   time.Time
}

// Store is the persistence collaborator shared by all concurrently running
// connection handlers. Implementations must be safe for concurrent calls;
// each method is treated as one atomic external operation.
//
// Lookup methods return (nil, nil) for "absent" so callers can distinguish
// a missing row from a storage fault.
type Store interface {
	FindUser(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username, password, phone, dob string) error
	QueryExercises(ctx context.Context, condition, level, goal string) ([]Exercise, error)
	RecordProgress(ctx context.Context, userID int64, exerciseName string) error
	SaveWorkoutHistory(ctx context.Context, userID int64, workoutName string, exercises []any, durationMinutes int64) (int64, error)
	ListWorkoutHistory(ctx context.Context, userID int64) ([]WorkoutEntry, error)
	ListUserPlans(ctx context.Context, userID int64) ([]SavedPlan, error)
	FindPlanByID(ctx context.Context, planID, userID int64) (*SavedPlan, error)
	SaveUserPlan(ctx context.Context, userID int64, name, level, goal, condition string, exercises []any) (int64, error)
	ListProgress(ctx context.Context, userID int64) ([]ProgressEntry, error)
}

// NutritionSource resolves a training goal to a nutrition plan. It is backed
// by a static lookup, not by Store.
type NutritionSource interface {
	Plan(goal string) (map[string]any, error)
}
