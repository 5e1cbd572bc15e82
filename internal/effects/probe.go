package effects

import (
	"context"
	"errors"
	"strings"
)

// DurationProbe resolves the duration of the media the effects apply to.
type DurationProbe interface {
	Duration(ctx context.Context) (float64, error)
}

// ProbeFunc adapts a function to DurationProbe.
type ProbeFunc func(ctx context.Context) (float64, error)

// Duration calls f.
func (f ProbeFunc) Duration(ctx context.Context) (float64, error) {
	return f(ctx)
}

// PathProber resolves the duration of a media file by path. ffprobe.Prober
// satisfies it.
type PathProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ForPath binds prober to a single media path.
func ForPath(prober PathProber, path string) DurationProbe {
	return ProbeFunc(func(ctx context.Context) (float64, error) {
		if prober == nil {
			return 0, errors.New("no duration prober configured")
		}
		if strings.TrimSpace(path) == "" {
			return 0, errors.New("no media path to probe")
		}
		return prober.Duration(ctx, path)
	})
}
