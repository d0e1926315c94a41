package domain

import "time"

// EpisodeStatus tracks whether an episode is still being simulated.
type EpisodeStatus string

const (
	EpisodeStatusRunning  EpisodeStatus = "running"
	EpisodeStatusFinished EpisodeStatus = "finished"
	EpisodeStatusFailed   EpisodeStatus = "failed"
)

// Episode summarises one environment episode from reset to termination.
type Episode struct {
	ID              string        `json:"id"`
	RunID           string        `json:"run_id"`
	Index           int           `json:"index"`
	Symbol          string        `json:"symbol"`
	Agent           string        `json:"agent"`
	RPnLThreshold   float64       `json:"rpnl_threshold"`
	RewardAsymmetry float64       `json:"reward_asymmetry"`
	Steps           int64         `json:"steps"`
	Trades          int64         `json:"trades"`
	TotalReward     float64       `json:"total_reward"`
	TotalRelRPnL    float64       `json:"total_rel_rpnl"`
	FinalNetWorth   float64       `json:"final_net_worth"`
	Status          EpisodeStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

// StepResult is the reward computed for a single environment step.
type StepResult struct {
	EpisodeID string           `json:"episode_id"`
	Step      int64            `json:"step"`
	Action    int              `json:"action"`
	Price     float64          `json:"price"`
	Trades    int              `json:"trades"`
	RelRPnL   float64          `json:"rel_rpnl"`
	Reward    float64          `json:"reward"`
	Position  PositionSnapshot `json:"position"`
	NetWorth  float64          `json:"net_worth"`
	Timestamp time.Time        `json:"timestamp"`
}
