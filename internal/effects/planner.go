package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/logging"
)

// Strategy names one rung of the effects ladder.
type Strategy string

const (
	StrategyFull          Strategy = "full"
	StrategyFadeInOnly    Strategy = "fade_in_only"
	StrategyWatermarkOnly Strategy = "watermark_only"
	StrategyNone          Strategy = "none"
)

var ladder = []Strategy{StrategyFull, StrategyFadeInOnly, StrategyWatermarkOnly, StrategyNone}

// Valid reports whether s is one of the four ladder strategies.
func (s Strategy) Valid() bool {
	for _, candidate := range ladder {
		if s == candidate {
			return true
		}
	}
	return false
}

// DefaultWatermark is used when a watermark is requested without text.
const DefaultWatermark = "reelforge"

// FeatureFlags are the operator preferences the planner honours.
type FeatureFlags struct {
	FadesEnabled       bool
	FadeOutEnabled     bool
	FadeSeconds        float64
	MinDurationSeconds float64
	WatermarkText      string
}

// FlagsFromConfig maps the [effects] config section onto FeatureFlags.
func FlagsFromConfig(cfg config.Effects) FeatureFlags {
	return FeatureFlags{
		FadesEnabled:       cfg.FadesEnabled,
		FadeOutEnabled:     cfg.FadeOutEnabled,
		FadeSeconds:        cfg.FadeSeconds,
		MinDurationSeconds: cfg.MinFadeDurationSeconds,
		WatermarkText:      cfg.WatermarkText,
	}
}

// Config is the composed effect configuration handed to the render tool.
type Config struct {
	VideoFilter     string  `json:"videoFilter"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	FadeInSeconds   float64 `json:"fadeInSeconds,omitempty"`
	FadeOutStart    float64 `json:"fadeOutStart,omitempty"`
	FadeOutSeconds  float64 `json:"fadeOutSeconds,omitempty"`
	Watermark       string  `json:"watermark,omitempty"`
}

// Plan is the planner's decision.
type Plan struct {
	Strategy Strategy `json:"strategy"`
	Config   Config   `json:"config"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Planner selects effect strategies.
type Planner struct {
	logger *slog.Logger
}

// NewPlanner constructs a Planner.
func NewPlanner(logger *slog.Logger) *Planner {
	return &Planner{logger: logging.NewComponentLogger(logger, "effects")}
}

type planInput struct {
	flags        FeatureFlags
	addWatermark bool
	duration     float64
	probeErr     error
}

// PlanEffects walks the ladder top-down and returns the first strategy whose
// preconditions hold and whose configuration passes the self-check.
func (p *Planner) PlanEffects(ctx context.Context, probe DurationProbe, flags FeatureFlags, addWatermark bool) (plan Plan) {
	var reasons []string
	defer func() {
		if r := recover(); r != nil {
			reasons = append(reasons, fmt.Sprintf("planner recovered from panic: %v", r))
			plan = safePlan(flags, addWatermark, reasons)
			p.log(ctx, plan)
		}
	}()

	in := planInput{flags: flags, addWatermark: addWatermark}
	if flags.FadesEnabled && flags.FadeOutEnabled {
		in.duration, in.probeErr = resolveDuration(ctx, probe)
	}

	for _, strategy := range ladder {
		if reason := skipReason(strategy, in); reason != "" {
			reasons = append(reasons, fmt.Sprintf("%s skipped: %s", strategy, reason))
			continue
		}
		cfg := compose(strategy, in)
		if err := selfCheck(strategy, cfg); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s rejected: %v", strategy, err))
			continue
		}
		plan = Plan{Strategy: strategy, Config: cfg, Reasons: reasons}
		p.log(ctx, plan)
		return plan
	}
	plan = Plan{Strategy: StrategyNone, Reasons: reasons}
	p.log(ctx, plan)
	return plan
}

func (p *Planner) log(ctx context.Context, plan Plan) {
	if p == nil || p.logger == nil {
		return
	}
	logging.WithContext(ctx, p.logger).Info("effects planned",
		logging.String(logging.FieldEventType, "effects_planned"),
		logging.String("strategy", string(plan.Strategy)),
		logging.Any("reasons", plan.Reasons),
	)
}

func resolveDuration(ctx context.Context, probe DurationProbe) (float64, error) {
	if probe == nil {
		return 0, errors.New("no duration probe")
	}
	return probe.Duration(ctx)
}

func skipReason(strategy Strategy, in planInput) string {
	switch strategy {
	case StrategyFull:
		switch {
		case !in.flags.FadesEnabled:
			return "fades disabled"
		case !in.flags.FadeOutEnabled:
			return "fade-out disabled"
		case in.probeErr != nil:
			return fmt.Sprintf("duration unavailable: %v", in.probeErr)
		case in.duration < minimumDuration(in.flags):
			return fmt.Sprintf("duration %ss below minimum %ss", formatSeconds(in.duration), formatSeconds(minimumDuration(in.flags)))
		}
	case StrategyFadeInOnly:
		if !in.flags.FadesEnabled {
			return "fades disabled"
		}
	case StrategyWatermarkOnly:
		if !in.addWatermark {
			return "no watermark requested"
		}
	}
	return ""
}

// minimumDuration leaves room for both fades without overlap.
func minimumDuration(flags FeatureFlags) float64 {
	return math.Max(flags.MinDurationSeconds, 2*fadeSeconds(flags))
}

func fadeSeconds(flags FeatureFlags) float64 {
	if flags.FadeSeconds > 0 {
		return flags.FadeSeconds
	}
	return 1
}

func compose(strategy Strategy, in planInput) Config {
	fade := fadeSeconds(in.flags)
	var cfg Config
	var filters []string

	switch strategy {
	case StrategyFull:
		cfg.DurationSeconds = in.duration
		cfg.FadeInSeconds = fade
		cfg.FadeOutSeconds = fade
		cfg.FadeOutStart = in.duration - fade
		filters = append(filters,
			"fade=t=in:st=0:d="+formatSeconds(fade),
			"fade=t=out:st="+formatSeconds(cfg.FadeOutStart)+":d="+formatSeconds(fade),
		)
	case StrategyFadeInOnly:
		cfg.FadeInSeconds = fade
		filters = append(filters, "fade=t=in:st=0:d="+formatSeconds(fade))
	case StrategyNone:
		return cfg
	}

	if in.addWatermark {
		cfg.Watermark = watermarkText(in.flags)
		filters = append(filters, drawtext(cfg.Watermark))
	}
	cfg.VideoFilter = strings.Join(filters, ",")
	return cfg
}

var invalidTokens = []string{"nan", "inf", "undefined", "null", "${", "{{"}

// selfCheck rejects configurations whose fade parameters did not resolve to
// finite numbers.
func selfCheck(strategy Strategy, cfg Config) error {
	for name, value := range map[string]float64{
		"duration":       cfg.DurationSeconds,
		"fade-in":        cfg.FadeInSeconds,
		"fade-out":       cfg.FadeOutSeconds,
		"fade-out start": cfg.FadeOutStart,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return fmt.Errorf("%s value %v is not a usable number", name, value)
		}
	}
	if strategy == StrategyFull && cfg.FadeOutStart <= 0 {
		return fmt.Errorf("fade-out start %s is not after the beginning", formatSeconds(cfg.FadeOutStart))
	}
	for _, part := range strings.Split(cfg.VideoFilter, ",") {
		if !strings.HasPrefix(part, "fade=") {
			continue
		}
		lower := strings.ToLower(part)
		for _, token := range invalidTokens {
			if strings.Contains(lower, token) {
				return fmt.Errorf("filter %q contains unresolved value %q", part, token)
			}
		}
	}
	if strategy != StrategyNone && strings.TrimSpace(cfg.VideoFilter) == "" {
		return errors.New("empty filter")
	}
	return nil
}

// safePlan is used when planning itself failed.
func safePlan(flags FeatureFlags, addWatermark bool, reasons []string) Plan {
	if !addWatermark {
		return Plan{Strategy: StrategyNone, Reasons: reasons}
	}
	text := watermarkText(flags)
	return Plan{
		Strategy: StrategyWatermarkOnly,
		Config:   Config{VideoFilter: drawtext(text), Watermark: text},
		Reasons:  reasons,
	}
}

func watermarkText(flags FeatureFlags) string {
	if text := strings.TrimSpace(flags.WatermarkText); text != "" {
		return text
	}
	return DefaultWatermark
}

func drawtext(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `,`, `\,`).Replace(text)
	return "drawtext=text='" + escaped + "':fontcolor=white@0.7:fontsize=24:x=w-tw-24:y=h-th-24"
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
