package models

import "time"

// GenerationLog captures one backend generation call for debugging and the
// /stats endpoint.
type GenerationLog struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RequestID   string `gorm:"size:36;index"`
	ChatID      string `gorm:"size:64;index"`
	Kind        string `gorm:"size:16;index"` // "plan", "post", "repackage"
	PromptChars int
	OutputChars int
	LatencyMs   int
	Success     bool
	Error       string `gorm:"size:255"`
	CreatedAt   time.Time
}
