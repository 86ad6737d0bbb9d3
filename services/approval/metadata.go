package approval

import (
	"encoding/json"
	"fmt"
	"strings"

	"fitcoach-controlplane/pkg/errutil"
)

// CommonMetadata is carried by every entity type.
type CommonMetadata struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Source          string   `json:"source,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	CaloriesTarget  *int     `json:"calories_target,omitempty"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
}

func (c CommonMetadata) Common() CommonMetadata { return c }

// Metadata is the proposed content of a draft. The concrete type always
// matches the workflow entity type.
type Metadata interface {
	EntityType() EntityType
	Common() CommonMetadata
	validate() []errutil.Detail
}

type ExerciseMetadata struct {
	CommonMetadata
	MuscleGroups []string `json:"muscle_groups"`
	Equipment    []string `json:"equipment,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

func (ExerciseMetadata) EntityType() EntityType { return EntityExercise }

func (m ExerciseMetadata) validate() []errutil.Detail {
	details := m.CommonMetadata.validate()
	if len(nonBlank(m.MuscleGroups)) == 0 {
		details = append(details, errutil.Detail{Field: "metadata.muscle_groups", Message: "at least one muscle group is required"})
	}
	return details
}

type MealSummary struct {
	Name     string  `json:"name"`
	Time     string  `json:"time,omitempty"`
	Foods    []Food  `json:"foods,omitempty"`
	Calories float64 `json:"calories,omitempty"`
}

type Food struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity,omitempty"`
	Calories float64 `json:"calories,omitempty"`
	Protein  float64 `json:"protein,omitempty"`
	Carbs    float64 `json:"carbs,omitempty"`
	Fat      float64 `json:"fat,omitempty"`
}

type NutritionMetadata struct {
	CommonMetadata
	Meals         []MealSummary `json:"meals"`
	DurationWeeks int           `json:"duration_weeks,omitempty"`
}

func (NutritionMetadata) EntityType() EntityType { return EntityNutrition }

func (m NutritionMetadata) validate() []errutil.Detail {
	details := m.CommonMetadata.validate()
	if len(m.Meals) == 0 {
		details = append(details, errutil.Detail{Field: "metadata.meals", Message: "at least one meal is required"})
	}
	for i, meal := range m.Meals {
		if strings.TrimSpace(meal.Name) == "" {
			details = append(details, errutil.Detail{Field: fmt.Sprintf("metadata.meals[%d].name", i), Message: "required"})
		}
	}
	return details
}

type WorkoutExercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets,omitempty"`
	Reps        string `json:"reps,omitempty"`
	RestSeconds int    `json:"rest_seconds,omitempty"`
}

type WorkoutMetadata struct {
	CommonMetadata
	Exercises       []WorkoutExercise `json:"exercises"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	DurationWeeks   int               `json:"duration_weeks,omitempty"`
}

func (WorkoutMetadata) EntityType() EntityType { return EntityWorkout }

func (m WorkoutMetadata) validate() []errutil.Detail {
	details := m.CommonMetadata.validate()
	if len(m.Exercises) == 0 {
		details = append(details, errutil.Detail{Field: "metadata.exercises", Message: "at least one exercise is required"})
	}
	return details
}

func (c CommonMetadata) validate() []errutil.Detail {
	var details []errutil.Detail
	if strings.TrimSpace(c.Name) == "" {
		details = append(details, errutil.Detail{Field: "metadata.name", Message: "required"})
	}
	if c.ConfidenceScore != nil && (*c.ConfidenceScore < 0 || *c.ConfidenceScore > 1) {
		details = append(details, errutil.Detail{Field: "metadata.confidence_score", Message: "must be between 0 and 1"})
	}
	if c.CaloriesTarget != nil && *c.CaloriesTarget < 0 {
		details = append(details, errutil.Detail{Field: "metadata.calories_target", Message: "must not be negative"})
	}
	return details
}

// DecodeMetadata decodes raw into the variant for entityType. It does not
// validate required fields.
func DecodeMetadata(entityType EntityType, raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var (
		m   Metadata
		err error
	)
	switch entityType {
	case EntityExercise:
		var v ExerciseMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case EntityNutrition:
		var v NutritionMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case EntityWorkout:
		var v WorkoutMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	default:
		return nil, &ValidationError{Fields: []errutil.Detail{{Field: "entity_type", Message: fmt.Sprintf("unknown entity type %q", entityType)}}}
	}
	if err != nil {
		return nil, &ValidationError{Fields: []errutil.Detail{{Field: "metadata", Message: "malformed metadata"}}, Err: err}
	}
	return m, nil
}

// ValidateMetadata checks the per entity type required fields.
func ValidateMetadata(m Metadata) error {
	if m == nil {
		return &ValidationError{Fields: []errutil.Detail{{Field: "metadata", Message: "required"}}}
	}
	if details := m.validate(); len(details) > 0 {
		return &ValidationError{Fields: details}
	}
	return nil
}

// ToMap flattens metadata for rule evaluation.
func ToMap(m Metadata) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonBlank(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
