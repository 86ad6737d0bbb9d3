package delivery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/services/renderer"
)

// planContent decodes the version content. An assignment without a version
// renders from the plan name alone.
func planContent(a *PlanAssignment) (PlanContent, error) {
	content := PlanContent{}
	if a.Version != nil && len(a.Version.Content) > 0 {
		if err := json.Unmarshal(a.Version.Content, &content); err != nil {
			return content, errutil.ValidationFailed("plan content is malformed", err)
		}
	}
	if strings.TrimSpace(content.Name) == "" && a.Plan != nil {
		content.Name = a.Plan.Name
	}
	return content, nil
}

// buildDocument picks the document variant from the plan type. Anything that
// is not a nutrition plan renders as a training plan.
func buildDocument(a *PlanAssignment, content PlanContent, branding renderer.Branding) renderer.Document {
	head := renderer.Header{
		TenantID:    a.TenantID,
		ReferenceID: a.PlanID,
		Title:       content.Name,
		TrainerName: a.Trainer.FullName(),
		Branding:    branding,
	}
	if a.Client != nil {
		head.ClientName = a.Client.FullName()
		head.ClientCode = a.Client.ClientCode
	}

	if a.Plan != nil && a.Plan.PlanType == PlanTypeNutrition {
		doc := renderer.NutritionPlan{
			Header:        head,
			Description:   content.Description,
			DurationWeeks: content.DurationWeeks,
		}
		for _, m := range content.Meals {
			meal := renderer.Meal{
				Name:          m.Name,
				Time:          m.Time,
				TotalCalories: m.TotalCalories,
				TotalProtein:  m.TotalProtein,
				TotalCarbs:    m.TotalCarbs,
				TotalFat:      m.TotalFat,
			}
			for _, f := range m.Foods {
				meal.Foods = append(meal.Foods, renderer.Food(f))
			}
			doc.Meals = append(doc.Meals, meal)
		}
		if content.Macros != nil {
			macros := renderer.MacroSummary(*content.Macros)
			doc.Macros = &macros
		}
		return doc
	}

	doc := renderer.TrainingPlan{
		Header:          head,
		Description:     content.Description,
		DurationWeeks:   content.DurationWeeks,
		WorkoutsPerWeek: content.WorkoutsPerWeek,
	}
	for _, e := range content.Exercises {
		doc.Exercises = append(doc.Exercises, renderer.Exercise(e))
	}
	return doc
}

// PortalLink is {base}/client/plans/{plan_id}?client={client_id}.
func PortalLink(baseURL, planID, clientID string) string {
	return fmt.Sprintf("%s/client/plans/%s?client=%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(planID), url.QueryEscape(clientID))
}

// checkInRounds builds one pending round per week. Round i is due 7*i days
// after start.
func checkInRounds(a *PlanAssignment, weeks int, start time.Time, newID func() string) []*CheckInSchedule {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	rows := make([]*CheckInSchedule, 0, weeks)
	for i := 1; i <= weeks; i++ {
		rows = append(rows, &CheckInSchedule{
			ID:           newID(),
			TenantID:     a.TenantID,
			AssignmentID: a.ID,
			ClientID:     a.ClientID,
			RoundNumber:  i,
			DueDate:      start.AddDate(0, 0, 7*i),
			Status:       string(StatusPending),
		})
	}
	return rows
}
