package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/venue/sim"
)

func TestSimConfigMapsAllTuningFields(t *testing.T) {
	vc := config.VenueConfig{
		Name:              "alpha",
		Kind:              "sim",
		SimBasePrice:      250.0,
		SimSpreadBps:      8.0,
		SimDriftBps:       -1.5,
		SimTickIntervalMs: 100,
		SimSlippageBps:    2.0,
		SimFeeBps:         10.0,
		SimLatencyMs:      50,
		SimFailEvery:      7,
	}

	got := simConfig(vc)
	want := sim.Config{
		Name:         "alpha",
		BasePrice:    250.0,
		SpreadBps:    8.0,
		DriftBps:     -1.5,
		TickInterval: 100 * time.Millisecond,
		SlippageBps:  2.0,
		FeeBps:       10.0,
		Latency:      50 * time.Millisecond,
		FailEvery:    7,
	}
	assert.Equal(t, want, got)
}

func TestSimConfigZeroTuningUsesSimulatorDefaults(t *testing.T) {
	// A venue with no sim_* keys maps to zero values, which the simulator
	// constructor replaces with its defaults.
	sv := sim.New(simConfig(config.VenueConfig{Name: "beta", Kind: "sim"}), 1)
	assert.Equal(t, "beta", sv.Venue())
}
