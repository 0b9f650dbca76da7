package errors

import "fmt"

type ProtocolError struct {
	Segment string
	Cause   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("Malformed protocol line %q: %v", truncate(e.Segment, 64), e.Cause)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

type DuplicateUserError struct {
	Username string
}

func (e *DuplicateUserError) Error() string {
	return fmt.Sprintf("User '%s' already exists", e.Username)
}

type NutritionPlanNotFoundError struct {
	Goal string
}

func (e *NutritionPlanNotFoundError) Error() string {
	return fmt.Sprintf("No nutrition plan for goal '%s'", e.Goal)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
