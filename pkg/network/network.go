// Package network loads road networks and real-time change sets from TOML,
// JSON or YAML files. The format follows the file extension; anything
// other than .json, .yaml or .yml is read as TOML.
//
// An edge file holds one [[edge]] table per road segment:
//
//	[[edge]]
//	from = "depot"
//	to = "harbour"
//	weight = 4.0
//	time_of_day = "night" # optional, default "day"
//	congestion = 2        # optional, default 0
//
// A change file holds one [[change]] table per observed override:
//
//	[[change]]
//	from = "depot"
//	to = "harbour"
//	weight = 0.5
//
// JSON and YAML files use the same layout: {"edge": [{"from": ..., ...}]}.
package network

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/ritzau/navisys/pkg/routing"
	"github.com/ritzau/navisys/pkg/weight"
)

// ErrMissingField is returned for entries lacking a required key
var ErrMissingField = errors.New("missing required field")

// ErrNotNumeric is returned when a weight is not written as a number
var ErrNotNumeric = errors.New("weight is not a number")

// EdgeSpec is one edge as written in an edge file
type EdgeSpec struct {
	From       string
	To         string
	Weight     float64
	TimeOfDay  weight.TimeOfDay
	Congestion int
}

// DefaultNetwork is the demo network loaded when no edge file is configured
func DefaultNetwork() []EdgeSpec {
	return []EdgeSpec{
		{From: "0", To: "1", Weight: 4, TimeOfDay: weight.Day, Congestion: 0},
		{From: "0", To: "2", Weight: 1, TimeOfDay: weight.Day, Congestion: 2},
		{From: "1", To: "2", Weight: 2, TimeOfDay: weight.Night, Congestion: 1},
		{From: "1", To: "3", Weight: 1, TimeOfDay: weight.Day, Congestion: 3},
		{From: "2", To: "3", Weight: 5, TimeOfDay: weight.Night, Congestion: 0},
	}
}

// LoadEdges reads the [[edge]] tables of an edge file
func LoadEdges(path string) ([]EdgeSpec, error) {
	k, err := load(path)
	if err != nil {
		return nil, err
	}

	entries := k.Slices("edge")
	specs := make([]EdgeSpec, 0, len(entries))
	for i, e := range entries {
		if err := requireKeys(e, "from", "to", "weight"); err != nil {
			return nil, fmt.Errorf("%s: edge %d: %w", path, i, err)
		}

		w, err := weightOf(e)
		if err != nil {
			return nil, fmt.Errorf("%s: edge %d: %w", path, i, err)
		}

		spec := EdgeSpec{
			From:       e.String("from"),
			To:         e.String("to"),
			Weight:     w,
			TimeOfDay:  weight.ParseTimeOfDay(e.String("time_of_day")),
			Congestion: e.Int("congestion"),
		}
		if err := weight.Validate(spec.Congestion); err != nil {
			return nil, fmt.Errorf("%s: edge %d (%s->%s): %w", path, i, spec.From, spec.To, err)
		}
		effective := weight.EffectiveWeight(spec.Weight, spec.TimeOfDay, spec.Congestion)
		if err := weight.ValidateWeight(effective); err != nil {
			return nil, fmt.Errorf("%s: edge %d (%s->%s): effective %w", path, i, spec.From, spec.To, err)
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// LoadChanges reads the [[change]] tables of a change file. A later entry
// for the same edge replaces an earlier one.
func LoadChanges(path string) (routing.ChangeSet[string], error) {
	k, err := load(path)
	if err != nil {
		return nil, err
	}

	changes := make(routing.ChangeSet[string])
	for i, c := range k.Slices("change") {
		if err := requireKeys(c, "from", "to", "weight"); err != nil {
			return nil, fmt.Errorf("%s: change %d: %w", path, i, err)
		}
		w, err := weightOf(c)
		if err != nil {
			return nil, fmt.Errorf("%s: change %d: %w", path, i, err)
		}
		key := routing.EdgeKey[string]{From: c.String("from"), To: c.String("to")}
		changes[key] = w
	}

	return changes, nil
}

// Populate adds every spec to g through the weight model
func Populate(g *routing.Graph[string], specs []EdgeSpec) {
	for _, s := range specs {
		g.AddEdge(s.From, s.To, s.Weight, s.TimeOfDay, s.Congestion)
	}
}

// weightOf reads the "weight" key as a finite number. koanf's Float64 maps
// unparseable values to zero, so the raw value is inspected instead.
func weightOf(k *koanf.Koanf) (float64, error) {
	var w float64
	switch v := k.Get("weight").(type) {
	case float64:
		w = v
	case float32:
		w = float64(v)
	case int:
		w = float64(v)
	case int64:
		w = float64(v)
	case uint64:
		w = float64(v)
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrNotNumeric, v, v)
	}

	if err := weight.ValidateWeight(w); err != nil {
		return 0, err
	}
	return w, nil
}

func load(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parser = json.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return k, nil
}

func requireKeys(k *koanf.Koanf, keys ...string) error {
	for _, key := range keys {
		if !k.Exists(key) {
			return fmt.Errorf("%w %q", ErrMissingField, key)
		}
	}
	return nil
}
