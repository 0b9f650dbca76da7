// Package router maps protocol actions onto persistence operations. It is
// pure dispatch: no transport I/O, no SQL, just request validation and
// response shaping against the fitness.Store collaborator.
package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/MarkKirilenko/tranning-app/pkg/errors"
	"github.com/MarkKirilenko/tranning-app/pkg/fitness"
	"github.com/MarkKirilenko/tranning-app/pkg/wire"
)

const timestampLayout = "2006-01-02 15:04"

// Router dispatches framed requests to their handlers. Both collaborators
// are injected at construction time and shared across every connection
// handler; the store is responsible for its own concurrency safety.
type Router struct {
	store     fitness.Store
	nutrition fitness.NutritionSource
	log       *zap.Logger
}

// New builds a Router. A nil logger falls back to a development logger.
func New(store fitness.Store, nutrition fitness.NutritionSource, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &Router{
		store:     store,
		nutrition: nutrition,
		log:       logger.With(zap.String("component", "router")),
	}
}

type handlerFn func(*Router, context.Context, wire.Message) wire.Message

// handlers is indexed by Action and must stay total: a missing entry would
// panic on first dispatch, which the compiler-checked actionCount bound
// makes hard to miss.
var handlers = [actionCount]handlerFn{
	ActionLogin:               (*Router).handleLogin,
	ActionRegister:            (*Router).handleRegister,
	ActionGetExercises:        (*Router).handleGetExercises,
	ActionTrackProgress:       (*Router).handleTrackProgress,
	ActionSaveWorkoutHistory:  (*Router).handleSaveWorkoutHistory,
	ActionGetWorkoutHistory:   (*Router).handleGetWorkoutHistory,
	ActionGetUserPlans:        (*Router).handleGetUserPlans,
	ActionGetNutritionPlan:    (*Router).handleGetNutritionPlan,
	ActionLoadExistingPlan:    (*Router).handleLoadExistingPlan,
	ActionSavePlan:            (*Router).handleSavePlan,
	ActionSavePlanWithHistory: (*Router).handleSavePlanWithHistory,
	ActionGetProgressHistory:  (*Router).handleGetProgressHistory,
}

// Route resolves the request's action and runs its handler. Unknown actions
// produce the error-shaped response older clients expect; note that shape
// intentionally has no "success" field.
func (r *Router) Route(ctx context.Context, req wire.Message) wire.Message {
	name, hasName := req[wire.FieldAction].(string)

	action, ok := ParseAction(name)
	if !ok {
		r.log.Warn("Unknown action requested", zap.String("action", name))

		resp := wire.Message{wire.FieldError: "Unknown action"}
		if hasName {
			resp[wire.FieldAction] = name
		} else {
			resp[wire.FieldAction] = nil
		}
		return resp
	}

	return handlers[action](r, ctx, req)
}

func success(a Action) wire.Message {
	return wire.Message{
		wire.FieldAction:  a.ResponseName(),
		wire.FieldSuccess: true,
	}
}

func failure(a Action, reason string) wire.Message {
	return wire.Message{
		wire.FieldAction:  a.ResponseName(),
		wire.FieldSuccess: false,
		wire.FieldMessage: reason,
	}
}

// findUser translates the three outcomes of a user lookup into at most one
// failure response. "User not found" and a storage fault are distinct
// messages on purpose.
func (r *Router) findUser(ctx context.Context, a Action, username string) (*fitness.User, wire.Message) {
	user, err := r.store.FindUser(ctx, username)
	if err != nil {
		r.log.Error("User lookup failed", zap.String("username", username), zap.Error(err))
		return nil, failure(a, fmt.Sprintf("Storage error: %v", err))
	}
	if user == nil {
		return nil, failure(a, "User not found")
	}
	return user, nil
}

func exercisesField(req wire.Message) []any {
	list, _ := req["exercises"].([]any)
	return list
}

func (r *Router) handleLogin(ctx context.Context, req wire.Message) wire.Message {
	username := req.String("username")

	user, err := r.store.FindUser(ctx, username)
	if err != nil {
		r.log.Error("User lookup failed", zap.String("username", username), zap.Error(err))
		return failure(ActionLogin, fmt.Sprintf("Storage error: %v", err))
	}

	if user == nil || user.Password != req.String("password") {
		return failure(ActionLogin, "Invalid username or password")
	}

	resp := success(ActionLogin)
	resp["username"] = username
	return resp
}

func (r *Router) handleRegister(ctx context.Context, req wire.Message) wire.Message {
	username := req.String("username")

	err := r.store.CreateUser(ctx, username, req.String("password"), req.String("phone"), req.String("dob"))
	if err != nil {
		var dup *apperrors.DuplicateUserError
		if errors.As(err, &dup) {
			return failure(ActionRegister, "User already exists")
		}

		r.log.Error("User registration failed", zap.String("username", username), zap.Error(err))
		return failure(ActionRegister, fmt.Sprintf("Storage error: %v", err))
	}

	return success(ActionRegister)
}

func (r *Router) handleGetExercises(ctx context.Context, req wire.Message) wire.Message {
	exercises, err := r.store.QueryExercises(ctx, req.String("condition"), req.String("level"), req.String("goal"))
	if err != nil {
		r.log.Error("Exercise query failed", zap.Error(err))
		return failure(ActionGetExercises, fmt.Sprintf("Storage error: %v", err))
	}

	if len(exercises) == 0 {
		return failure(ActionGetExercises, "Invalid level, goal or condition")
	}

	list := make([]wire.Message, 0, len(exercises))
	for _, e := range exercises {
		list = append(list, wire.Message{
			"name":             e.Name,
			"description":      e.Description,
			"muscle_group":     e.MuscleGroup,
			"level":            e.Level,
			"equipment":        e.Equipment,
			"duration_minutes": e.DurationMinutes,
		})
	}

	resp := success(ActionGetExercises)
	resp["exercises"] = list
	return resp
}

func (r *Router) handleTrackProgress(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionTrackProgress, req.String("username"))
	if failResp != nil {
		return failResp
	}

	if err := r.store.RecordProgress(ctx, user.ID, req.String("exercise")); err != nil {
		r.log.Error("Progress save failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionTrackProgress, fmt.Sprintf("Save error: %v", err))
	}

	return success(ActionTrackProgress)
}

func (r *Router) handleSaveWorkoutHistory(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionSaveWorkoutHistory, req.String("username"))
	if failResp != nil {
		return failResp
	}

	historyID, err := r.store.SaveWorkoutHistory(ctx, user.ID, req.String("workout_name"), exercisesField(req), req.Int("duration"))
	if err != nil {
		r.log.Error("Workout history save failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionSaveWorkoutHistory, fmt.Sprintf("Save error: %v", err))
	}

	resp := success(ActionSaveWorkoutHistory)
	resp["history_id"] = historyID
	return resp
}

func (r *Router) handleGetWorkoutHistory(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionGetWorkoutHistory, req.String("username"))
	if failResp != nil {
		return failResp
	}

	entries, err := r.store.ListWorkoutHistory(ctx, user.ID)
	if err != nil {
		r.log.Error("Workout history query failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionGetWorkoutHistory, fmt.Sprintf("Storage error: %v", err))
	}

	history := make([]wire.Message, 0, len(entries))
	for _, e := range entries {
		history = append(history, wire.Message{
			"id":               e.ID,
			"workout_name":     e.WorkoutName,
			"exercises":        e.Exercises,
			"duration_minutes": e.DurationMinutes,
			"completed_at":     e.CompletedAt.Format(timestampLayout),
		})
	}

	resp := success(ActionGetWorkoutHistory)
	resp["history"] = history
	return resp
}

func (r *Router) handleGetUserPlans(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionGetUserPlans, req.String("username"))
	if failResp != nil {
		return failResp
	}

	plans, err := r.store.ListUserPlans(ctx, user.ID)
	if err != nil {
		r.log.Error("Plan query failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionGetUserPlans, fmt.Sprintf("Storage error: %v", err))
	}

	list := make([]wire.Message, 0, len(plans))
	for _, p := range plans {
		list = append(list, planMessage(&p))
	}

	resp := success(ActionGetUserPlans)
	resp["plans"] = list
	return resp
}

func (r *Router) handleGetNutritionPlan(_ context.Context, req wire.Message) wire.Message {
	plan, err := r.nutrition.Plan(req.String("goal"))
	if err != nil {
		var notFound *apperrors.NutritionPlanNotFoundError
		if errors.As(err, &notFound) {
			return failure(ActionGetNutritionPlan, "Nutrition plan not found")
		}

		r.log.Error("Nutrition plan lookup failed", zap.Error(err))
		return failure(ActionGetNutritionPlan, fmt.Sprintf("Failed to load nutrition plan: %v", err))
	}

	resp := success(ActionGetNutritionPlan)
	resp["plan"] = plan
	return resp
}

func (r *Router) handleLoadExistingPlan(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionLoadExistingPlan, req.String("username"))
	if failResp != nil {
		return failResp
	}

	plan, err := r.store.FindPlanByID(ctx, req.Int("plan_id"), user.ID)
	if err != nil {
		r.log.Error("Plan lookup failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionLoadExistingPlan, fmt.Sprintf("Storage error: %v", err))
	}
	if plan == nil {
		return failure(ActionLoadExistingPlan, "Plan not found")
	}

	resp := success(ActionLoadExistingPlan)
	resp["plan"] = planMessage(plan)
	return resp
}

func (r *Router) handleSavePlan(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionSavePlan, req.String("username"))
	if failResp != nil {
		return failResp
	}

	planID, err := r.savePlanFromRequest(ctx, user.ID, req)
	if err != nil {
		r.log.Error("Plan save failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionSavePlan, fmt.Sprintf("Save error: %v", err))
	}

	resp := success(ActionSavePlan)
	resp["plan_id"] = planID
	return resp
}

// handleSavePlanWithHistory runs two persistence operations as one logical
// unit. There is no compensating rollback: if the history write fails after
// the plan write succeeded, the plan row stays and the response reports
// overall failure.
func (r *Router) handleSavePlanWithHistory(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionSavePlanWithHistory, req.String("username"))
	if failResp != nil {
		return failResp
	}

	planID, err := r.savePlanFromRequest(ctx, user.ID, req)
	if err != nil {
		r.log.Error("Plan save failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionSavePlanWithHistory, fmt.Sprintf("Save error: %v", err))
	}

	workoutName := fmt.Sprintf("Saved plan: %s", req.String("plan_name"))
	historyID, err := r.store.SaveWorkoutHistory(ctx, user.ID, workoutName, exercisesField(req), 0)
	if err != nil {
		r.log.Error("History save failed after plan save", zap.Int64("userId", user.ID), zap.Int64("planId", planID), zap.Error(err))
		return failure(ActionSavePlanWithHistory, fmt.Sprintf("Save error: %v", err))
	}

	resp := success(ActionSavePlanWithHistory)
	resp["plan_id"] = planID
	resp["history_id"] = historyID
	return resp
}

func (r *Router) handleGetProgressHistory(ctx context.Context, req wire.Message) wire.Message {
	user, failResp := r.findUser(ctx, ActionGetProgressHistory, req.String("username"))
	if failResp != nil {
		return failResp
	}

	entries, err := r.store.ListProgress(ctx, user.ID)
	if err != nil {
		r.log.Error("Progress query failed", zap.Int64("userId", user.ID), zap.Error(err))
		return failure(ActionGetProgressHistory, fmt.Sprintf("Storage error: %v", err))
	}

	progress := make([]wire.Message, 0, len(entries))
	for _, e := range entries {
		progress = append(progress, wire.Message{
			"exercise_name": e.ExerciseName,
			"timestamp":     e.RecordedAt.Format(timestampLayout),
		})
	}

	resp := success(ActionGetProgressHistory)
	resp["progress"] = progress
	return resp
}

func (r *Router) savePlanFromRequest(ctx context.Context, userID int64, req wire.Message) (int64, error) {
	return r.store.SaveUserPlan(ctx, userID,
		req.String("plan_name"),
		req.String("level"),
		req.String("goal"),
		req.String("condition"),
		exercisesField(req))
}

func planMessage(p *fitness.SavedPlan) wire.Message {
	return wire.Message{
		"id":         p.ID,
		"plan_name":  p.Name,
		"level":      p.Level,
		"goal":       p.Goal,
		"condition":  p.Condition,
		"exercises":  p.Exercises,
		"created_at": p.CreatedAt.Format(timestampLayout),
	}
}
