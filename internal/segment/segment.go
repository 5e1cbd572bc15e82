package segment

import (
	"fmt"
	"math"
)

// Segment is a time range within a media file, scored for relevance.
type Segment struct {
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	FilePath    string  `json:"filePath"`
	Score       float64 `json:"score"`
	StrategyTag string  `json:"strategyTag"`
}

// New constructs a Segment, rejecting ranges that are empty or inverted.
func New(filePath string, start, end, score float64, strategy string) (Segment, error) {
	if !finite(start) || start < 0 {
		return Segment{}, fmt.Errorf("segment start %v must be a finite number >= 0", start)
	}
	if !finite(end) || end <= start {
		return Segment{}, fmt.Errorf("segment end %v must be greater than start %v", end, start)
	}
	return Segment{
		StartTime:   start,
		EndTime:     end,
		FilePath:    filePath,
		Score:       ClampScore(score),
		StrategyTag: strategy,
	}, nil
}

// Duration returns the length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// ClampScore forces score into [0,1]. Non-finite values map to 0.
func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// Clone returns a copy of segs that shares no backing array.
func Clone(segs []Segment) []Segment {
	if segs == nil {
		return nil
	}
	out := make([]Segment, len(segs))
	copy(out, segs)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
