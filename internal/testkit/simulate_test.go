package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateDeterministic(t *testing.T) {
	a, err := Simulate(DefaultConfig())
	require.NoError(t, err)
	b, err := Simulate(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, a.Matrix.Counts, b.Matrix.Counts)
	assert.Equal(t, a.Matrix.Fingerprint(), b.Matrix.Fingerprint())

	cfg := DefaultConfig()
	cfg.Seed = 2
	c, err := Simulate(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Matrix.Fingerprint(), c.Matrix.Fingerprint())
}

func TestSimulateShape(t *testing.T) {
	sim, err := Simulate(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 200, sim.Matrix.NumGenes())
	assert.Equal(t, 6, sim.Matrix.NumSamples())
	assert.Len(t, sim.Design.Records, 6)
	assert.NoError(t, sim.Matrix.Validate())
	assert.Equal(t, -2.0, sim.Truth[0])
	assert.Equal(t, 2.0, sim.Truth[10])
	assert.Equal(t, 0.0, sim.Truth[199])
}

func TestSimulateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groups = []string{"only"}
	_, err := Simulate(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.DownGenes = 150
	cfg.UpGenes = 100
	_, err = Simulate(cfg)
	assert.Error(t, err)
}

func TestCountMoments(t *testing.T) {
	g := NewGenerator(7)
	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(g.Count(50, 0.1))
	}
	mean := sum / n
	assert.InDelta(t, 50, mean, 2.5)
	assert.Equal(t, int64(0), g.Count(0, 0.1))
}
