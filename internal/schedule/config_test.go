package schedule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abq-pulse/trafficwatch/internal/config"
)

func TestFromConfig_NoOverride(t *testing.T) {
	cfg, err := FromConfig(config.BaselineConfig{
		Groups:     2,
		CycleWeeks: 4,
		Slots:      []string{"07:00", "19:00"},
		GroupTag:   "weekly",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Groups)
	assert.Equal(t, 4, cfg.CycleWeeks)
	assert.Equal(t, "weekly", cfg.GroupTag)
	require.Len(t, cfg.Slots, 2)
	assert.Equal(t, "07:00", cfg.Slots[0].String())
	assert.Equal(t, "19:00", cfg.Slots[1].String())
}

func TestFromConfig_YAMLOverride(t *testing.T) {
	yaml := `
rotation:
  groups: 4
  cycle_weeks: 8
  group_tag: monthly
  slots: ["08:30", "18:00"]
`
	path := filepath.Join(t.TempDir(), "rotation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := FromConfig(config.BaselineConfig{
		Groups:     2,
		CycleWeeks: 4,
		Slots:      []string{"07:00"},
		GroupTag:   "weekly",
		ConfigFile: path,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Groups)
	assert.Equal(t, 8, cfg.CycleWeeks)
	assert.Equal(t, "monthly", cfg.GroupTag)
	require.Len(t, cfg.Slots, 2)
	assert.Equal(t, Slot{Hour: 8, Minute: 30}, cfg.Slots[0])
}

func TestFromConfig_FileMissing(t *testing.T) {
	_, err := FromConfig(config.BaselineConfig{
		Groups:     2,
		Slots:      []string{"07:00"},
		ConfigFile: "/nonexistent/rotation.yaml",
	})
	assert.Error(t, err)
}

func TestFromConfig_BadSlot(t *testing.T) {
	_, err := FromConfig(config.BaselineConfig{
		Groups: 2,
		Slots:  []string{"7pm"},
	})
	assert.Error(t, err)
}
