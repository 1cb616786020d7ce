// Package seed loads the signal network and the candidate fleet from YAML
// or JSON files.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
)

// Signal is one traffic light entry of a seed file.
type Signal struct {
	ID       string      `json:"id" yaml:"id"`
	Location geo.Point   `json:"location" yaml:"location"`
	Cycle    model.Cycle `json:"normal_cycle" yaml:"normal_cycle"`
}

// File is the content of a seed file. Every section is optional.
type File struct {
	Signals      []Signal            `json:"signals" yaml:"signals"`
	Ambulances   []model.Ambulance   `json:"ambulances" yaml:"ambulances"`
	Hospitals    []model.Hospital    `json:"hospitals" yaml:"hospitals"`
	FireTrucks   []model.FireTruck   `json:"fire_trucks" yaml:"fire_trucks"`
	FireStations []model.FireStation `json:"fire_stations" yaml:"fire_stations"`
}

// LoadFile reads a seed file, picking the format from its extension.
func LoadFile(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer func() { _ = f.Close() }()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	s, err := Decode(f, format)
	if err != nil {
		return File{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return s, nil
}

// Decode reads a seed document in the given format.
func Decode(r io.Reader, format string) (File, error) {
	var s File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return s, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return s, err
		}
	default:
		return s, fmt.Errorf("unsupported format: %s", format)
	}
	return s, nil
}

// Merge appends the sections of o.
func (s *File) Merge(o File) {
	s.Signals = append(s.Signals, o.Signals...)
	s.Ambulances = append(s.Ambulances, o.Ambulances...)
	s.Hospitals = append(s.Hospitals, o.Hospitals...)
	s.FireTrucks = append(s.FireTrucks, o.FireTrucks...)
	s.FireStations = append(s.FireStations, o.FireStations...)
}

// Candidates returns every fleet entry as a candidate.
func (s File) Candidates() []model.Candidate {
	out := make([]model.Candidate, 0, len(s.Ambulances)+len(s.Hospitals)+len(s.FireTrucks)+len(s.FireStations))
	for _, c := range s.Ambulances {
		out = append(out, c)
	}
	for _, c := range s.Hospitals {
		out = append(out, c)
	}
	for _, c := range s.FireStations {
		out = append(out, c)
	}
	for _, c := range s.FireTrucks {
		out = append(out, c)
	}
	return out
}

// Validate reports every problem found, joined.
func (s File) Validate() error {
	var errs []error
	seen := map[string]bool{}
	check := func(kind, id string, loc geo.Point) {
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("%s without id", kind))
		case seen[kind+"/"+id]:
			errs = append(errs, fmt.Errorf("duplicate %s %s", kind, id))
		case loc.IsZero():
			errs = append(errs, fmt.Errorf("%s %s has no location", kind, id))
		}
		seen[kind+"/"+id] = true
	}
	for _, sig := range s.Signals {
		check("signal", sig.ID, sig.Location)
	}
	ids := map[string]bool{}
	for _, c := range s.Candidates() {
		if ids[c.ID()] {
			errs = append(errs, fmt.Errorf("candidate id %s used twice", c.ID()))
		}
		ids[c.ID()] = true
		check(string(c.Kind()), c.ID(), c.Location())
	}
	for _, t := range s.FireTrucks {
		if t.StationID != "" && !seen[string(model.KindFireStation)+"/"+t.StationID] {
			errs = append(errs, fmt.Errorf("fire truck %s references unknown station %s", t.CandidateID, t.StationID))
		}
	}
	return errors.Join(errs...)
}

// ApplySignals registers the signals on net and returns how many were added.
func (s File) ApplySignals(net *corridor.Network) int {
	for _, sig := range s.Signals {
		net.Register(model.Signal{ID: sig.ID, Location: sig.Location, Cycle: sig.Cycle})
	}
	return len(s.Signals)
}

// ApplyFleet upserts every candidate into reg.
func (s File) ApplyFleet(reg *registry.Store) int {
	cands := s.Candidates()
	for _, c := range cands {
		reg.Upsert(c)
	}
	return len(cands)
}

// LoadAll reads and merges several seed files.
func LoadAll(paths []string) (File, error) {
	var all File
	for _, p := range paths {
		f, err := LoadFile(p)
		if err != nil {
			return File{}, err
		}
		all.Merge(f)
	}
	return all, all.Validate()
}
