package reward

import (
	"fmt"
	"math"
	"strings"
)

// Thresholds tune the reward shaping. A realized relative PnL at or below
// -RPnLThreshold earns -1; one at or above RewardAsymmetry*RPnLThreshold
// earns +1; anything in between passes through unchanged.
type Thresholds struct {
	RPnLThreshold   float64 `json:"rpnl_threshold"`
	RewardAsymmetry float64 `json:"reward_asymmetry"`
}

// Validate checks that both thresholds are positive and finite.
func (t Thresholds) Validate() error {
	var errs []string
	if !finite(t.RPnLThreshold) || t.RPnLThreshold <= 0 {
		errs = append(errs, fmt.Sprintf("rpnl_threshold must be positive and finite, got %v", t.RPnLThreshold))
	}
	if !finite(t.RewardAsymmetry) || t.RewardAsymmetry <= 0 {
		errs = append(errs, fmt.Sprintf("reward_asymmetry must be positive and finite, got %v", t.RewardAsymmetry))
	}
	if len(errs) > 0 {
		return fmt.Errorf("reward: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ProfitTrigger is the relative PnL at which the reward saturates at +1.
func (t Thresholds) ProfitTrigger() float64 {
	return t.RewardAsymmetry * t.RPnLThreshold
}

// Shape maps a realized relative PnL to a reward. The profit cap is checked
// before the loss cap.
func Shape(relRPnL float64, t Thresholds) float64 {
	switch {
	case relRPnL >= t.ProfitTrigger():
		return 1
	case relRPnL <= -t.RPnLThreshold:
		return -1
	default:
		return relRPnL
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
