package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnomalyGuardVetoesLargeDrop(t *testing.T) {
	threshold := 0.5
	g := NewAnomalyGuard(&threshold)
	require.True(t, g.Enabled())

	// 100 enrolled, feed has 40: ratio -0.6 trips a 0.5 threshold.
	d := g.Check("csci1000", 100, 40)
	require.True(t, d.Failed)
	require.Equal(t, -60, d.Diff)
	require.InDelta(t, -0.6, d.Ratio, 1e-9)

	// Exactly at the threshold still fails.
	d = g.Check("csci1000", 100, 50)
	require.True(t, d.Failed)

	// Just under the threshold passes.
	d = g.Check("csci1000", 100, 51)
	require.False(t, d.Failed)

	// Growth always passes.
	d = g.Check("csci1000", 100, 150)
	require.False(t, d.Failed)
}

func TestAnomalyGuardEmptyCourseAlwaysPasses(t *testing.T) {
	threshold := 0.1
	g := NewAnomalyGuard(&threshold)

	d := g.Check("csci1000", 0, 0)
	require.False(t, d.Failed)
	require.Equal(t, ratioAlwaysPass, d.Ratio)
}

func TestAnomalyGuardDisabled(t *testing.T) {
	g := NewAnomalyGuard(nil)
	require.False(t, g.Enabled())
	require.False(t, g.Check("csci1000", 100, 0).Failed)
}

func TestFormatVetoTable(t *testing.T) {
	out := FormatVetoTable([]CourseDelta{
		{Course: "csci1000", Current: 100, New: 40, Diff: -60, Ratio: -0.6, Failed: true},
	})
	require.Contains(t, out, "COURSE")
	require.Contains(t, out, "csci1000")
	require.Contains(t, out, "-60")
}
