package renderer

import (
	"regexp"
	"strings"
)

const (
	DefaultPrimaryColor = "#00C26A"
	DefaultCompanyName  = "FitCoach Pro"
	DefaultTrainerName  = "Your Coach"
)

// Kind names the document variant. It selects the template and is stored
// alongside the artifact.
type Kind string

const (
	KindTrainingPlan   Kind = "training_plan"
	KindNutritionPlan  Kind = "nutrition_plan"
	KindProgressReport Kind = "progress_report"
	KindInvoice        Kind = "invoice"
)

type Branding struct {
	LogoURL      string `json:"logo,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// WithDefaults fills the unset branding fields. A primary color that is not
// a hex color falls back to the default.
func (b Branding) WithDefaults() Branding {
	if !hexColor.MatchString(strings.TrimSpace(b.PrimaryColor)) {
		b.PrimaryColor = DefaultPrimaryColor
	}
	if strings.TrimSpace(b.CompanyName) == "" {
		b.CompanyName = DefaultCompanyName
	}
	return b
}

// Header is shared by every document variant.
type Header struct {
	TenantID    string
	ReferenceID string // plan id, report id or invoice number
	Title       string
	ClientName  string
	ClientCode  string
	TrainerName string
	Branding    Branding
}

func (h Header) withDefaults() Header {
	h.Branding = h.Branding.WithDefaults()
	if strings.TrimSpace(h.TrainerName) == "" {
		h.TrainerName = DefaultTrainerName
	}
	return h
}

// Document is the closed set of renderable documents.
type Document interface {
	Kind() Kind
	Head() Header
	document()
}

type Exercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	Tempo       string `json:"tempo,omitempty"`
	RestSeconds int    `json:"rest_seconds,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type TrainingPlan struct {
	Header
	Description     string
	DurationWeeks   int
	WorkoutsPerWeek int
	Exercises       []Exercise
}

func (TrainingPlan) Kind() Kind     { return KindTrainingPlan }
func (d TrainingPlan) Head() Header { return d.Header }
func (TrainingPlan) document()      {}

type Food struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

type Meal struct {
	Name          string  `json:"name"`
	Time          string  `json:"time"`
	Foods         []Food  `json:"foods"`
	TotalCalories float64 `json:"total_calories"`
	TotalProtein  float64 `json:"total_protein"`
	TotalCarbs    float64 `json:"total_carbs"`
	TotalFat      float64 `json:"total_fat"`
}

type MacroSummary struct {
	ProteinPercent float64 `json:"protein_percent"`
	CarbsPercent   float64 `json:"carbs_percent"`
	FatPercent     float64 `json:"fat_percent"`
	TotalCalories  float64 `json:"total_calories"`
}

type NutritionPlan struct {
	Header
	Description   string
	DurationWeeks int
	Meals         []Meal
	Macros        *MacroSummary
}

func (NutritionPlan) Kind() Kind     { return KindNutritionPlan }
func (d NutritionPlan) Head() Header { return d.Header }
func (NutritionPlan) document()      {}

type CheckInRound struct {
	RoundNumber int
	Date        string
	WeightKg    float64
	BodyFatPct  float64
	Notes       string
}

type ProgressReport struct {
	Header
	Rounds []CheckInRound
}

func (ProgressReport) Kind() Kind     { return KindProgressReport }
func (d ProgressReport) Head() Header { return d.Header }
func (ProgressReport) document()      {}

type LineItem struct {
	Description string
	Quantity    int
	UnitPrice   float64
}

func (l LineItem) Amount() float64 {
	return float64(l.Quantity) * l.UnitPrice
}

type Invoice struct {
	Header
	Number   string
	Items    []LineItem
	Currency string
}

func (Invoice) Kind() Kind     { return KindInvoice }
func (d Invoice) Head() Header { return d.Header }
func (Invoice) document()      {}

func (d Invoice) Total() float64 {
	var total float64
	for _, item := range d.Items {
		total += item.Amount()
	}
	return total
}

// Artifact is a stored rendering.
type Artifact struct {
	URL         string
	ObjectKey   string
	Size        int64
	ContentType string
}
