package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnforcesRangeAndClampsScore(t *testing.T) {
	seg, err := New("clip.mp4", 1.5, 4, 1.7, "peak")
	require.NoError(t, err)
	assert.Equal(t, Segment{FilePath: "clip.mp4", StartTime: 1.5, EndTime: 4, Score: 1, StrategyTag: "peak"}, seg)

	for name, r := range map[string][2]float64{
		"negative start": {-1, 2},
		"empty range":    {3, 3},
		"reversed range": {5, 2},
		"nan end":        {0, math.NaN()},
		"infinite start": {math.Inf(1), math.Inf(1)},
	} {
		_, err := New("clip.mp4", r[0], r[1], 0.5, "peak")
		assert.Error(t, err, name)
	}
}
