package analytics

import (
	"time"

	"github.com/google/uuid"
)

// SyncType identifies what a sync run covered
type SyncType string

const (
	// SyncTypeFull is a full daily → product → customer → coupon pass
	SyncTypeFull SyncType = "full"
)

// SyncStatus is the outcome of a sync run
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// SyncLog is the append-only audit record of one sync run
type SyncLog struct {
	ID               uuid.UUID  `json:"id"`
	SyncType         SyncType   `json:"sync_type"`
	Status           SyncStatus `json:"status"`
	RecordsProcessed int64      `json:"records_processed"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	// Summary is a JSON document with one entry per completed phase
	Summary    string    `json:"summary,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewSuccessSyncLog builds the log for a run that completed every phase
func NewSuccessSyncLog(syncType SyncType, records int64, summary string, startedAt, finishedAt time.Time) *SyncLog {
	return &SyncLog{
		ID:               uuid.New(),
		SyncType:         syncType,
		Status:           SyncStatusSuccess,
		RecordsProcessed: records,
		Summary:          summary,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
	}
}

// NewErrorSyncLog builds the log for a run aborted by a failing phase
func NewErrorSyncLog(syncType SyncType, records int64, summary string, cause error, startedAt, finishedAt time.Time) *SyncLog {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &SyncLog{
		ID:               uuid.New(),
		SyncType:         syncType,
		Status:           SyncStatusError,
		RecordsProcessed: records,
		ErrorMessage:     msg,
		Summary:          summary,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
	}
}

// Duration returns how long the run took
func (l *SyncLog) Duration() time.Duration {
	return l.FinishedAt.Sub(l.StartedAt)
}
