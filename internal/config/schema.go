// Package config loads simulation files and compiles them into a scenario
// graph, protocol configuration and injection profile.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Simulation is the top-level simulation file.
type Simulation struct {
	Name string `json:"name" yaml:"name"`
	// Seed makes random values reproducible; 0 picks a random seed.
	Seed     uint64         `json:"seed,omitempty" yaml:"seed,omitempty"`
	Protocol ProtocolConfig `json:"protocol" yaml:"protocol"`
	// Policy is "continue" (default) or "fail-fast".
	Policy             string                  `json:"policy,omitempty" yaml:"policy,omitempty"`
	MaxConcurrentUsers int64                   `json:"maxConcurrentUsers,omitempty" yaml:"maxConcurrentUsers,omitempty"`
	Chains             map[string][]StepConfig `json:"chains,omitempty" yaml:"chains,omitempty"`
	Scenario           ScenarioConfig          `json:"scenario" yaml:"scenario"`
	Injection          []InjectionConfig       `json:"injection" yaml:"injection"`
	Assertions         []string                `json:"assertions,omitempty" yaml:"assertions,omitempty"`
}

// ProtocolConfig holds the HTTP defaults.
type ProtocolConfig struct {
	BaseURL            string            `json:"baseUrl" yaml:"baseUrl"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	UserAgent          string            `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Timeout            Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxConnsPerHost    int               `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	InsecureSkipVerify bool              `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// ScenarioConfig is the root sequence.
type ScenarioConfig struct {
	Name  string       `json:"name" yaml:"name"`
	Steps []StepConfig `json:"steps" yaml:"steps"`
}

// StepConfig holds exactly one step kind.
type StepConfig struct {
	Request *RequestConfig `json:"request,omitempty" yaml:"request,omitempty"`
	Pause   *PauseConfig   `json:"pause,omitempty" yaml:"pause,omitempty"`
	Exec    *ExecConfig    `json:"exec,omitempty" yaml:"exec,omitempty"`
	Repeat  *RepeatConfig  `json:"repeat,omitempty" yaml:"repeat,omitempty"`
	Assign  *AssignConfig  `json:"assign,omitempty" yaml:"assign,omitempty"`
}

// RequestConfig describes one request. Path, header, query and body values
// may contain {{key}} placeholders.
type RequestConfig struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	// Body is a raw body template.
	Body string `json:"body,omitempty" yaml:"body,omitempty"`
	// JSON builds a JSON object body; a value that is a single placeholder
	// keeps the session value's type.
	JSON    map[string]string `json:"json,omitempty" yaml:"json,omitempty"`
	Checks  []CheckConfig     `json:"checks,omitempty" yaml:"checks,omitempty"`
	Timeout Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// CheckConfig selects one extractor and any number of validators.
type CheckConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// extractors, exactly one
	Status     *int   `json:"status,omitempty" yaml:"status,omitempty"`
	Header     string `json:"header,omitempty" yaml:"header,omitempty"`
	JSONPath   string `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`
	BodyBytes  bool   `json:"bodyBytes,omitempty" yaml:"bodyBytes,omitempty"`
	BodyString bool   `json:"bodyString,omitempty" yaml:"bodyString,omitempty"`

	Transform string `json:"transform,omitempty" yaml:"transform,omitempty"`

	// validators
	Is        any    `json:"is,omitempty" yaml:"is,omitempty"`
	IsSession string `json:"isSession,omitempty" yaml:"isSession,omitempty"`
	In        []any  `json:"in,omitempty" yaml:"in,omitempty"`
	NotNull   bool   `json:"notNull,omitempty" yaml:"notNull,omitempty"`
	OfList    bool   `json:"ofList,omitempty" yaml:"ofList,omitempty"`
	OfObject  bool   `json:"ofObject,omitempty" yaml:"ofObject,omitempty"`
	Schema    string `json:"schema,omitempty" yaml:"schema,omitempty"`

	SaveAs   string `json:"saveAs,omitempty" yaml:"saveAs,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// PauseConfig is either a fixed duration ("1s") or a {min, max} range.
type PauseConfig struct {
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max      Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

type pauseFields PauseConfig

func (p *PauseConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		p.Duration = Duration(value.Value)
		return nil
	}
	return value.Decode((*pauseFields)(p))
}

func (p *PauseConfig) UnmarshalJSON(data []byte) error {
	var d Duration
	if err := d.UnmarshalJSON(data); err == nil {
		p.Duration = d
		return nil
	}
	return json.Unmarshal(data, (*pauseFields)(p))
}

// ExecConfig runs a named chain after setting the With keys.
type ExecConfig struct {
	Chain string            `json:"chain" yaml:"chain"`
	With  map[string]string `json:"with,omitempty" yaml:"with,omitempty"`
}

// RepeatConfig runs Steps Times times.
type RepeatConfig struct {
	Times   int          `json:"times" yaml:"times"`
	Counter string       `json:"counter,omitempty" yaml:"counter,omitempty"`
	Steps   []StepConfig `json:"steps" yaml:"steps"`
}

// AssignConfig sets Key from a template or a random integer.
type AssignConfig struct {
	Key    string        `json:"key" yaml:"key"`
	Value  string        `json:"value,omitempty" yaml:"value,omitempty"`
	Random *RandomConfig `json:"random,omitempty" yaml:"random,omitempty"`
}

// RandomConfig is an inclusive integer range.
type RandomConfig struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// InjectionConfig holds exactly one injection step.
type InjectionConfig struct {
	AtOnce       *int      `json:"atOnce,omitempty" yaml:"atOnce,omitempty"`
	RampUsers    *int      `json:"rampUsers,omitempty" yaml:"rampUsers,omitempty"`
	NothingFor   *Duration `json:"nothingFor,omitempty" yaml:"nothingFor,omitempty"`
	ConstantRate *float64  `json:"constantRate,omitempty" yaml:"constantRate,omitempty"`
	During       Duration  `json:"during,omitempty" yaml:"during,omitempty"`
}

// Duration is a duration as written in a simulation file: a Go duration
// string or a number of seconds.
type Duration string

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Duration(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", data)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*d = Duration(n.String())
	return nil
}
