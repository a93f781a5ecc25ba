package trust

import "fmt"

const (
	// MinScore and MaxScore bound every trust score.
	MinScore = 0
	MaxScore = 100

	// TrustedThreshold is the minimum score for a node to receive new fragments.
	TrustedThreshold = 70

	// mediumThreshold is the lower bound of the medium trust level.
	mediumThreshold = 50
)

// Level is the operator-facing trust classification.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// LevelOf classifies a score: high >= 70, medium 50-69, low < 50.
func LevelOf(score int) Level {
	switch {
	case score >= TrustedThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Policy controls how retrieval outcomes move trust scores.
type Policy struct {
	SuccessStep     int `yaml:"success_step"`     // SuccessStep is added on a successful retrieval
	FailureStep     int `yaml:"failure_step"`     // FailureStep is subtracted on a failed retrieval
	DeactivateBelow int `yaml:"deactivate_below"` // DeactivateBelow deactivates nodes scoring under it; 0 disables
}

// DefaultPolicy returns the default scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		SuccessStep:     1,
		FailureStep:     5,
		DeactivateBelow: 20,
	}
}

// Validate checks that the steps are non-negative and the threshold is a valid score.
func (p Policy) Validate() error {
	if p.SuccessStep < 0 || p.FailureStep < 0 {
		return fmt.Errorf("trust steps must be non-negative (success=%d failure=%d)", p.SuccessStep, p.FailureStep)
	}

	if p.DeactivateBelow < MinScore || p.DeactivateBelow > MaxScore {
		return fmt.Errorf("deactivate_below %d outside [%d,%d]", p.DeactivateBelow, MinScore, MaxScore)
	}

	return nil
}

// apply returns the score after one outcome, clamped to [MinScore, MaxScore].
func (p Policy) apply(score int, succeeded bool) int {
	if succeeded {
		score += p.SuccessStep
	} else {
		score -= p.FailureStep
	}

	return clamp(score)
}

func clamp(score int) int {
	return max(MinScore, min(MaxScore, score))
}
