package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/labsweep/internal/instrument"
	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

// Procedure kinds understood by the CLI.
const (
	KindProduct = "product"
	KindRemote  = "remote"
	KindSerial  = "serial"
)

const (
	defaultWorkers = 4
	defaultTimeout = 5 * time.Second
)

// Experiment is a sweep definition loaded from JSON.
//
//	{
//	  "name": "bias_scan",
//	  "procedure": {"kind": "product"},
//	  "parameters": [
//	    {"name": "x", "value": 5, "units": "a.u."},
//	    {"name": "y", "values": [4.5, 3.4, 3, 5]},
//	    {"name": "w", "range": "1:4:1", "units": "m"}
//	  ]
//	}
type Experiment struct {
	Name       string            `json:"name,omitempty"`
	Comment    string            `json:"comment,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Procedure  ProcedureConfig   `json:"procedure"`
	Parameters []ParameterConfig `json:"parameters"`
}

// ProcedureConfig selects and configures the procedure run at each point.
type ProcedureConfig struct {
	Kind string `json:"kind"`

	// Target is the gRPC address of a remote executor (kind "remote").
	Target string `json:"target,omitempty"`

	// Device is the serial device path (kind "serial").
	Device string                  `json:"device,omitempty"`
	Serial *instrument.PortOptions `json:"serial,omitempty"`

	// Timeout bounds one instrument exchange, as a duration string like "2s".
	Timeout *string `json:"timeout,omitempty"`

	Workers *int `json:"workers,omitempty"`

	// Fields declares the result schema up front. When set the sweep skips
	// its probe run.
	Fields []FieldConfig `json:"fields,omitempty"`
}

// FieldConfig describes one result field.
type FieldConfig struct {
	Name   string `json:"name"`
	Units  string `json:"units,omitempty"`
	Vector bool   `json:"vector,omitempty"`
}

// ParameterConfig is one parameter. Exactly one of Value, Values, Range and
// Linspace must be given.
type ParameterConfig struct {
	Name  string `json:"name"`
	Units string `json:"units,omitempty"`

	Value    json.RawMessage `json:"value,omitempty"`
	Values   json.RawMessage `json:"values,omitempty"`
	Range    string          `json:"range,omitempty"`
	Linspace *LinspaceConfig `json:"linspace,omitempty"`

	// Iterated overrides the default rule (sequence values are iterated).
	Iterated *bool `json:"iterated,omitempty"`
}

// LinspaceConfig is num evenly spaced values from start to stop inclusive.
type LinspaceConfig struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Num   int     `json:"num"`
}

// LoadExperiment loads and validates an experiment from a JSON file.
func LoadExperiment(path string) (*Experiment, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseExperiment(data)
}

// ParseExperiment decodes and validates an experiment definition.
func ParseExperiment(data []byte) (*Experiment, error) {
	var exp Experiment
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&exp); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &exp, nil
}

// Validate checks the procedure block and that the parameters build a valid
// set.
func (e *Experiment) Validate() error {
	p := e.Procedure
	switch p.Kind {
	case KindProduct:
	case KindRemote:
		if p.Target == "" {
			return fmt.Errorf("procedure kind %q requires a target", p.Kind)
		}
	case KindSerial:
		if p.Device == "" {
			return fmt.Errorf("procedure kind %q requires a device", p.Kind)
		}
		if p.Serial != nil {
			if _, err := p.Serial.Normalize(); err != nil {
				return fmt.Errorf("serial: %w", err)
			}
		}
	case "":
		return fmt.Errorf("procedure kind is required")
	default:
		return fmt.Errorf("unknown procedure kind %q: expected %s, %s or %s", p.Kind, KindProduct, KindRemote, KindSerial)
	}

	if p.Timeout != nil && *p.Timeout != "" {
		if _, err := time.ParseDuration(*p.Timeout); err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", *p.Timeout, err)
		}
	}
	if p.Workers != nil && *p.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", *p.Workers)
	}
	for i, f := range p.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
	}

	if len(e.Parameters) == 0 {
		return fmt.Errorf("at least one parameter is required")
	}
	if _, err := e.ParameterSet(); err != nil {
		return err
	}
	return nil
}

// ParameterSet builds the sweep template in declaration order.
func (e *Experiment) ParameterSet() (*param.Set, error) {
	set, err := param.NewSet()
	if err != nil {
		return nil, err
	}
	for i, pc := range e.Parameters {
		p, err := pc.parameter()
		if err != nil {
			return nil, fmt.Errorf("parameter %d (%s): %w", i, pc.Name, err)
		}
		if err := set.Add(p); err != nil {
			return nil, fmt.Errorf("parameter %d (%s): %w", i, pc.Name, err)
		}
	}
	return set, nil
}

func (pc ParameterConfig) parameter() (param.Parameter, error) {
	if strings.TrimSpace(pc.Name) == "" {
		return param.Parameter{}, fmt.Errorf("name is required")
	}

	var (
		value   any
		sources int
		domain  bool
	)
	if len(pc.Value) > 0 {
		sources++
		v, err := decodeValue(pc.Value)
		if err != nil {
			return param.Parameter{}, fmt.Errorf("value: %w", err)
		}
		value = v
	}
	if len(pc.Values) > 0 {
		sources++
		v, err := decodeValue(pc.Values)
		if err != nil {
			return param.Parameter{}, fmt.Errorf("values: %w", err)
		}
		if !param.IsSequence(v) {
			return param.Parameter{}, fmt.Errorf("values must be a list")
		}
		value, domain = v, true
	}
	if pc.Range != "" {
		sources++
		v, err := sweep.ParseParamList(pc.Range)
		if err != nil {
			return param.Parameter{}, fmt.Errorf("range: %w", err)
		}
		value, domain = v, true
	}
	if pc.Linspace != nil {
		sources++
		if pc.Linspace.Num < 1 {
			return param.Parameter{}, fmt.Errorf("linspace num must be positive, got %d", pc.Linspace.Num)
		}
		v, err := sweep.Linspace(pc.Linspace.Start, pc.Linspace.Stop, pc.Linspace.Num)
		if err != nil {
			return param.Parameter{}, fmt.Errorf("linspace: %w", err)
		}
		value, domain = v, true
	}
	if sources != 1 {
		return param.Parameter{}, fmt.Errorf("exactly one of value, values, range or linspace is required, got %d", sources)
	}

	var opts []param.Option
	switch {
	case pc.Iterated != nil:
		opts = append(opts, param.Iterated(*pc.Iterated))
	case domain:
		opts = append(opts, param.Iterated(true))
	}
	return param.New(pc.Name, value, pc.Units, opts...), nil
}

// decodeValue turns JSON into a parameter value. Numeric lists become
// []float64; mixed lists stay []any.
func decodeValue(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, fmt.Errorf("null is not a value")
		}
		return v, nil
	}
	nums := make([]float64, len(list))
	for i, e := range list {
		x, ok := e.(float64)
		if !ok {
			return list, nil
		}
		nums[i] = x
	}
	return nums, nil
}

// FieldDescriptors returns the declared result schema, or nil when the
// schema is left to the probe run.
func (e *Experiment) FieldDescriptors() []param.FieldDescriptor {
	if len(e.Procedure.Fields) == 0 {
		return nil
	}
	out := make([]param.FieldDescriptor, len(e.Procedure.Fields))
	for i, f := range e.Procedure.Fields {
		units := f.Units
		if units == "" {
			units = param.DefaultUnits
		}
		out[i] = param.FieldDescriptor{Name: f.Name, Units: units, Vector: f.Vector}
	}
	return out
}

// GetWorkers returns the executor parallelism or the default.
func (p ProcedureConfig) GetWorkers() int {
	if p.Workers == nil {
		return defaultWorkers
	}
	return *p.Workers
}

// GetTimeout parses and returns the Timeout as a time.Duration.
func (p ProcedureConfig) GetTimeout() time.Duration {
	if p.Timeout == nil || *p.Timeout == "" {
		return defaultTimeout
	}
	d, err := time.ParseDuration(*p.Timeout)
	if err != nil {
		return defaultTimeout
	}
	return d
}

// GetSerial returns the serial options, defaulted.
func (p ProcedureConfig) GetSerial() instrument.PortOptions {
	if p.Serial == nil {
		return instrument.PortOptions{}
	}
	return *p.Serial
}
