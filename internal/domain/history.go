package domain

import "time"

// RunStatus はエントリポイント実行の結果を表す。
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord はエントリポイント一回分の実行記録。
type RunRecord struct {
	ID          string
	RunID       string // 同じコマンド実行内で共通のID
	Project     string
	Environment string
	File        string
	Entrypoint  Entrypoint
	Status      RunStatus
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}
