package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/mkaran/dispatchsim/internal/persona"
)

var ErrNotFound = errors.New("scenario not found")

// Scenario is a reusable caller preset a trainer picks when starting a call.
type Scenario struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CallerName     string    `json:"caller_name"`
	Situation      string    `json:"situation"`
	Address        string    `json:"address"`
	EmotionalState string    `json:"emotional_state"`
	Cooperation    int       `json:"cooperation"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile converts the preset into the caller profile the generator consumes.
func (s Scenario) Profile() persona.Profile {
	return persona.Profile{
		CallerName:     s.CallerName,
		Situation:      s.Situation,
		Address:        s.Address,
		EmotionalState: s.EmotionalState,
		Cooperation:    s.Cooperation,
	}
}

// Store manages caller presets.
type Store interface {
	Create(ctx context.Context, sc Scenario) (Scenario, error)
	Get(ctx context.Context, id string) (Scenario, error)
	List(ctx context.Context) ([]Scenario, error)
	Update(ctx context.Context, sc Scenario) (Scenario, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// BuiltinScenarios seeds every store so a fresh deployment has usable presets.
func BuiltinScenarios() []Scenario {
	return []Scenario{
		{
			ID:             "home-intruder",
			Name:           "Home intruder",
			CallerName:     "Sarah",
			Situation:      "Someone is breaking into the house through the back door while the caller hides upstairs.",
			Address:        "42 Oak Street",
			EmotionalState: "terrified, whispering",
			Cooperation:    55,
		},
		{
			ID:             "kitchen-fire",
			Name:           "Kitchen fire",
			CallerName:     "Marcus",
			Situation:      "A grease fire has spread from the stove to the cabinets and smoke is filling the apartment.",
			Address:        "118 Riverside Drive, Apt 4B",
			EmotionalState: "panicked, coughing",
			Cooperation:    70,
		},
		{
			ID:             "car-accident",
			Name:           "Car accident",
			CallerName:     "Elena",
			Situation:      "The caller witnessed a two-car collision and one driver is unresponsive behind the wheel.",
			Address:        "intersection of 5th Avenue and Pine Road",
			EmotionalState: "shaken but focused",
			Cooperation:    85,
		},
		{
			ID:             "domestic-dispute",
			Name:           "Domestic dispute",
			CallerName:     "Danny",
			Situation:      "A loud argument next door has turned violent and the caller can hear things breaking.",
			Address:        "230 Maple Court",
			EmotionalState: "nervous, evasive",
			Cooperation:    25,
		},
	}
}
