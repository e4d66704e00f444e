package consumption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleTracker_Phases(t *testing.T) {
	ctx := context.Background()
	tr := newCycleTracker(nil)
	assert.Equal(t, phaseAwaitingBaseline, tr.fsm.Current())

	c, err := tr.observe(ctx, fuel(1, 0, 1000, 10, false))
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, phaseAwaitingBaseline, tr.fsm.Current())

	c, err = tr.observe(ctx, fuel(2, 1, 1100, 40, true))
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, phaseCycleOpen, tr.fsm.Current())
	assert.True(t, tr.pending.IsZero(), "partial amounts before the first full fill are discarded")

	c, err = tr.observe(ctx, fuel(3, 2, 1500, 32, true))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 8.0, *c)
	assert.Equal(t, phaseCycleOpen, tr.fsm.Current())
	assert.EqualValues(t, 3, tr.baseline.ID)
}

func TestCycleTracker_AccumulatesPending(t *testing.T) {
	ctx := context.Background()
	tr := newCycleTracker(nil)

	_, err := tr.observe(ctx, fuel(1, 0, 1000, 40, true))
	require.NoError(t, err)
	for i, amount := range []float64{0.1, 0.2, 0.3} {
		_, err := tr.observe(ctx, fuel(int64(i+2), i+1, 1000+int64(i+1)*10, amount, false))
		require.NoError(t, err)
	}
	assert.Equal(t, "0.6", tr.pending.String())

	c, err := tr.observe(ctx, fuel(9, 9, 1100, 0.4, true))
	require.NoError(t, err)
	assert.Equal(t, 1.0, *c)
	assert.True(t, tr.pending.IsZero())
}

func TestParseRegressionPolicy(t *testing.T) {
	for _, name := range []string{"", "null"} {
		p, err := ParseRegressionPolicy(name)
		require.NoError(t, err)
		assert.Nil(t, p(-10, 5))
	}

	p, err := ParseRegressionPolicy("zero")
	require.NoError(t, err)
	require.NotNil(t, p(-10, 5))
	assert.Equal(t, 0.0, *p(-10, 5))

	_, err = ParseRegressionPolicy("previous")
	assert.Error(t, err)
}
