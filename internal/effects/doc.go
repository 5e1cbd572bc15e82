// Package effects chooses the rendering effects applied by the final step.
//
// Planner walks a fixed ladder from the richest strategy to the safest (Full,
// FadeInOnly, WatermarkOnly, None) and returns the first rung whose
// preconditions hold and whose composed configuration passes a self-check.
// PlanEffects never fails: every skipped rung and every internal problem is
// recorded as a reason on the returned Plan.
package effects
