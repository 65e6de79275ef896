package schedule

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/abq-pulse/trafficwatch/internal/config"
)

// fileConfig is the YAML shape of an optional rotation override file.
type fileConfig struct {
	Rotation struct {
		Groups     int      `yaml:"groups"`
		CycleWeeks int      `yaml:"cycle_weeks"`
		Slots      []string `yaml:"slots"`
		GroupTag   string   `yaml:"group_tag"`
	} `yaml:"rotation"`
}

// FromConfig builds a schedule Config from the application config, applying
// the optional YAML override file when one is configured.
func FromConfig(cfg config.BaselineConfig) (Config, error) {
	c := Config{
		Groups:     cfg.Groups,
		CycleWeeks: cfg.CycleWeeks,
		GroupTag:   cfg.GroupTag,
	}

	slots, err := ParseSlots(cfg.Slots)
	if err != nil {
		return Config{}, err
	}
	c.Slots = slots

	if cfg.ConfigFile == "" {
		return c, nil
	}

	data, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		return Config{}, eris.Wrapf(err, "schedule: read %s", cfg.ConfigFile)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, eris.Wrapf(err, "schedule: parse %s", cfg.ConfigFile)
	}

	if fc.Rotation.Groups > 0 {
		c.Groups = fc.Rotation.Groups
	}
	if fc.Rotation.CycleWeeks > 0 {
		c.CycleWeeks = fc.Rotation.CycleWeeks
	}
	if fc.Rotation.GroupTag != "" {
		c.GroupTag = fc.Rotation.GroupTag
	}
	if len(fc.Rotation.Slots) > 0 {
		slots, err := ParseSlots(fc.Rotation.Slots)
		if err != nil {
			return Config{}, err
		}
		c.Slots = slots
	}

	return c, nil
}

// ParseSlots parses HH:MM strings into Slots.
func ParseSlots(raw []string) ([]Slot, error) {
	slots := make([]Slot, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(strings.TrimSpace(r), ":", 2)
		if len(parts) != 2 {
			return nil, eris.Errorf("schedule: malformed slot %q", r)
		}
		hour, err := strconv.Atoi(parts[0])
		if err != nil || hour < 0 || hour > 23 {
			return nil, eris.Errorf("schedule: bad hour in slot %q", r)
		}
		minute, err := strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return nil, eris.Errorf("schedule: bad minute in slot %q", r)
		}
		slots = append(slots, Slot{Hour: hour, Minute: minute})
	}
	return slots, nil
}
