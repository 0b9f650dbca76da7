package router

// Action is the closed set of request kinds the server understands. The wire
// carries action names as strings; ParseAction maps them onto this enum so
// every handler dispatch below is total and an unrecognized name can only
// surface as the wire-level "Unknown action" response.
type Action uint8

const (
	ActionLogin Action = iota
	ActionRegister
	ActionGetExercises
	ActionTrackProgress
	ActionSaveWorkoutHistory
	ActionGetWorkoutHistory
	ActionGetUserPlans
	ActionGetNutritionPlan
	ActionLoadExistingPlan
	ActionSavePlan
	ActionSavePlanWithHistory
	ActionGetProgressHistory

	actionCount
)

var actionNames = map[string]Action{
	"login":                  ActionLogin,
	"register":               ActionRegister,
	"get_exercises":          ActionGetExercises,
	"track_progress":         ActionTrackProgress,
	"save_workout_history":   ActionSaveWorkoutHistory,
	"get_workout_history":    ActionGetWorkoutHistory,
	"get_user_plans":         ActionGetUserPlans,
	"get_nutrition_plan":     ActionGetNutritionPlan,
	"load_existing_plan":     ActionLoadExistingPlan,
	"save_plan":              ActionSavePlan,
	"save_plan_with_history": ActionSavePlanWithHistory,
	"get_progress_history":   ActionGetProgressHistory,
}

// responseNames maps each request kind to the fixed action name carried by
// its responses.
var responseNames = [actionCount]string{
	ActionLogin:               "auth",
	ActionRegister:            "register",
	ActionGetExercises:        "exercises",
	ActionTrackProgress:       "progress",
	ActionSaveWorkoutHistory:  "workout_history_saved",
	ActionGetWorkoutHistory:   "workout_history",
	ActionGetUserPlans:        "user_plans",
	ActionGetNutritionPlan:    "nutrition_plan",
	ActionLoadExistingPlan:    "existing_plan_loaded",
	ActionSavePlan:            "plan_saved",
	ActionSavePlanWithHistory: "plan_with_history_saved",
	ActionGetProgressHistory:  "progress_history",
}

// ParseAction resolves a wire action name. The second return is false for
// names outside the protocol.
func ParseAction(name string) (Action, bool) {
	a, ok := actionNames[name]
	return a, ok
}

// ResponseName returns the response action name paired with a.
func (a Action) ResponseName() string {
	return responseNames[a]
}
