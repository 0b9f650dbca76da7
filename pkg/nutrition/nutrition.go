// Package nutrition resolves training goals to nutrition plans. Plans live
// in a standalone JSON file, not in the SQL store; when the file is absent a
// built-in default set is written there on first load.
package nutrition

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	apperrors "github.com/MarkKirilenko/tranning-app/pkg/errors"
	"github.com/MarkKirilenko/tranning-app/pkg/fitness"
)

// Source is a read-only goal -> plan lookup loaded once at startup. Reads
// after Load never touch the filesystem, so concurrent handler access is
// safe without locking.
type Source struct {
	plans map[string]map[string]any
	log   *zap.Logger
}

// Load reads the plan file at path, creating it from the default plans when
// it does not exist. A nil logger falls back to a development logger.
func Load(path string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	log := logger.With(zap.String("component", "nutrition"))

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info("Nutrition plan file missing, writing defaults", zap.String("path", path))

		raw = []byte(defaultPlansJSON)
		if writeErr := os.WriteFile(path, raw, 0o644); writeErr != nil {
			// Defaults still serve from memory when the write fails.
			log.Warn("Failed to write default nutrition plans", zap.Error(writeErr))
		}
	} else if err != nil {
		return nil, fmt.Errorf("reading nutrition plans: %w", err)
	}

	var plans map[string]map[string]any
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, fmt.Errorf("parsing nutrition plans: %w", err)
	}

	return &Source{plans: plans, log: log}, nil
}

// Plan returns the nutrition plan for goal.
func (s *Source) Plan(goal string) (map[string]any, error) {
	plan, has := s.plans[goal]
	if !has {
		return nil, &apperrors.NutritionPlanNotFoundError{Goal: goal}
	}
	return plan, nil
}

// Goals lists the known goals in stable order.
func (s *Source) Goals() []string {
	goals := make([]string, 0, len(s.plans))
	for goal := range s.plans {
		goals = append(goals, goal)
	}
	sort.Strings(goals)
	return goals
}

// Verify interface compliance.
var _ fitness.NutritionSource = (*Source)(nil)

const defaultPlansJSON = `{
  "weight_loss": {
    "description": "Calorie deficit for gradual weight loss",
    "calories": 1800,
    "protein": 120,
    "carbs": 180,
    "fat": 50,
    "meals": [
      {"time": "08:00", "name": "Breakfast", "description": "Oatmeal with berries and an egg"},
      {"time": "11:00", "name": "Snack", "description": "Apple and a handful of nuts"},
      {"time": "14:00", "name": "Lunch", "description": "Chicken breast with buckwheat and vegetables"},
      {"time": "17:00", "name": "Snack", "description": "Cottage cheese with yogurt"},
      {"time": "20:00", "name": "Dinner", "description": "Steamed fish with salad"}
    ],
    "tips": [
      "Drink 2-3 liters of water a day",
      "Cut out sugary drinks",
      "Eat slowly and chew thoroughly"
    ]
  },
  "muscle_gain": {
    "description": "Calorie surplus for muscle growth",
    "calories": 2800,
    "protein": 180,
    "carbs": 320,
    "fat": 70,
    "meals": [
      {"time": "07:00", "name": "Breakfast", "description": "Three-egg omelette with avocado toast"},
      {"time": "10:00", "name": "Snack", "description": "Protein shake and a banana"},
      {"time": "13:00", "name": "Lunch", "description": "Beef with rice and vegetables"},
      {"time": "16:00", "name": "Snack", "description": "Cottage cheese with honey and nuts"},
      {"time": "19:00", "name": "Dinner", "description": "Salmon with potatoes and broccoli"},
      {"time": "21:30", "name": "Before bed", "description": "Casein protein"}
    ],
    "tips": [
      "Eat every 2.5-3 hours",
      "Increase protein intake",
      "Never skip a meal"
    ]
  },
  "maintenance": {
    "description": "Balanced calories to hold current weight",
    "calories": 2300,
    "protein": 140,
    "carbs": 250,
    "fat": 60,
    "meals": [
      {"time": "08:00", "name": "Breakfast", "description": "Buckwheat porridge with milk"},
      {"time": "11:00", "name": "Snack", "description": "Yogurt with fruit"},
      {"time": "14:00", "name": "Lunch", "description": "Turkey with quinoa and salad"},
      {"time": "17:00", "name": "Snack", "description": "Nuts and dried fruit"},
      {"time": "20:00", "name": "Dinner", "description": "Chicken with roasted vegetables"}
    ],
    "tips": [
      "Keep a regular meal schedule",
      "Balance protein, carbs and fat",
      "Adjust portions to activity level"
    ]
  }
}`
