package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPreset is used when neither a rotation file, a rotation spec nor a preset is given.
const DefaultPreset = "storfuzz_libafl"

// Duration accepts either a bare number of seconds or a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := parseRunTime(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// PhaseSpec is one slot of the rotation as written by the operator.
type PhaseSpec struct {
	Engine  string   `yaml:"engine"`
	RunTime Duration `yaml:"run_time"`
}

type rotationFile struct {
	Rotation []PhaseSpec `yaml:"rotation"`
}

const day = 24 * time.Hour

var presets = map[string][]PhaseSpec{
	"storfuzz_libafl": {
		{Engine: "storfuzz", RunTime: Duration(day)},
		{Engine: "libafl", RunTime: Duration(day)},
	},
	"libafl_libafl": {
		{Engine: "libafl", RunTime: Duration(day)},
		{Engine: "libafl", RunTime: Duration(day)},
	},
	"ddfuzz_libafl": {
		{Engine: "ddfuzz", RunTime: Duration(day)},
		{Engine: "libafl", RunTime: Duration(day)},
	},
	"wingfuzz_libfuzzer": {
		{Engine: "wingfuzz", RunTime: Duration(day)},
		{Engine: "libfuzzer", RunTime: Duration(day)},
	},
}

// Preset returns a copy of the named rotation preset.
func Preset(name string) ([]PhaseSpec, bool) {
	specs, ok := presets[name]
	if !ok {
		return nil, false
	}
	return append([]PhaseSpec(nil), specs...), true
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadRotation resolves the rotation from, in order of precedence, the
// rotation file, the inline rotation spec and the preset name.
func (c *AppConfig) LoadRotation() ([]PhaseSpec, error) {
	switch {
	case c.RotationFile != "":
		return ParseRotationFile(c.RotationFile)
	case c.RotationSpec != "":
		return ParseRotationSpec(c.RotationSpec)
	default:
		name := c.RotationPreset
		if name == "" {
			name = DefaultPreset
		}
		specs, ok := Preset(name)
		if !ok {
			return nil, fmt.Errorf("unknown rotation preset %q (known: %s)", name, strings.Join(PresetNames(), ", "))
		}
		return specs, nil
	}
}

// ParseRotationFile reads a YAML document of the form
//
//	rotation:
//	  - engine: storfuzz
//	    run_time: 24h
//	  - engine: libafl
//	    run_time: 86400
func ParseRotationFile(path string) ([]PhaseSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rotation file: %w", err)
	}
	var file rotationFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rotation file %s: %w", path, err)
	}
	if len(file.Rotation) == 0 {
		return nil, fmt.Errorf("rotation file %s has no slots", path)
	}
	return file.Rotation, nil
}

// ParseRotationSpec parses "engine=run_time,engine=run_time".
func ParseRotationSpec(spec string) ([]PhaseSpec, error) {
	var specs []PhaseSpec
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		engine, runTime, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(engine) == "" {
			return nil, fmt.Errorf("invalid rotation slot %q, want engine=run_time", item)
		}
		d, err := parseRunTime(runTime)
		if err != nil {
			return nil, fmt.Errorf("invalid rotation slot %q: %w", item, err)
		}
		specs = append(specs, PhaseSpec{Engine: strings.TrimSpace(engine), RunTime: Duration(d)})
	}
	if len(specs) == 0 {
		return nil, errors.New("rotation spec is empty")
	}
	return specs, nil
}

func parseRunTime(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("run_time is empty")
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("run_time %q is neither seconds nor a duration", raw)
	}
	return d, nil
}
