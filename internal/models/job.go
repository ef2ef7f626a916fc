package models

import "time"

// Audio job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// AudioJob is the durable trace of one dispatched generation job. The
// submission endpoint writes it before the fire-and-forget dispatch, so
// a dispatch that dies before the worker runs still leaves a record the
// reconciliation sweep can act on.
type AudioJob struct {
	ID            uint   `gorm:"primaryKey"`
	ContentItemID uint   `gorm:"index"`
	UserID        uint   `gorm:"index"`
	Status        string `gorm:"size:32"`
	Error         string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
