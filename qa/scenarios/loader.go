// Package scenarios replays YAML dispatch scenarios against an in-process
// orchestrator and corridor coordinator.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/infra/seed"
)

// IncidentDef is an incident report in a scenario.
type IncidentDef struct {
	Domain             string    `yaml:"domain"`
	Type               string    `yaml:"type"`
	Severity           string    `yaml:"severity"`
	Location           geo.Point `yaml:"location"`
	HospitalPreference string    `yaml:"hospital_preference,omitempty"`
	SelectedHospital   string    `yaml:"selected_hospital,omitempty"`
	PeopleTrapped      bool      `yaml:"people_trapped,omitempty"`
	// Count > 1 dispatches several ambulances at once.
	Count int `yaml:"count,omitempty"`
}

func (d IncidentDef) ToRequest() dispatch.Request {
	return dispatch.Request{
		Domain:             model.Domain(d.Domain),
		Reporter:           "scenario",
		Type:               d.Type,
		Severity:           model.Severity(d.Severity),
		Origin:             d.Location,
		HospitalPreference: d.HospitalPreference,
		SelectedHospital:   d.SelectedHospital,
		PeopleTrapped:      d.PeopleTrapped,
	}
}

// TransitionDef moves an earlier incident, referenced by its step index.
type TransitionDef struct {
	Step int    `yaml:"step"`
	To   string `yaml:"to"`
}

// Expected is checked after a step.
type Expected struct {
	Status     string   `yaml:"status,omitempty"`
	Units      []string `yaml:"units,omitempty"`
	Station    string   `yaml:"station,omitempty"`
	Corridors  *int     `yaml:"corridors,omitempty"`
	NoResource bool     `yaml:"no_resource,omitempty"`
	Invalid    bool     `yaml:"invalid,omitempty"`
}

// Step does exactly one thing: report an incident, transition one, or take
// a candidate out of service.
type Step struct {
	Incident   *IncidentDef   `yaml:"incident,omitempty"`
	Transition *TransitionDef `yaml:"transition,omitempty"`
	Disable    string         `yaml:"disable,omitempty"`
	Expect     *Expected      `yaml:"expect,omitempty"`
}

type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Fleet       seed.File `yaml:"fleet"`
	Steps       []Step    `yaml:"steps"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks the fleet and that transitions point at earlier incident steps.
func (sc *Scenario) Validate() error {
	if err := sc.Fleet.Validate(); err != nil {
		return err
	}
	for i, st := range sc.Steps {
		n := 0
		for _, set := range []bool{st.Incident != nil, st.Transition != nil, st.Disable != ""} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("step %d: exactly one of incident, transition or disable is required", i)
		}
		if t := st.Transition; t != nil {
			if t.Step < 0 || t.Step >= i || sc.Steps[t.Step].Incident == nil {
				return fmt.Errorf("step %d: transition must reference an earlier incident step", i)
			}
		}
	}
	return nil
}
