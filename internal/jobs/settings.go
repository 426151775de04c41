package jobs

import (
	"time"

	"github.com/Gidwell/jiro/internal/config"
)

// QueueSettings are the job tunables shared by the handlers.
type QueueSettings struct {
	DueFloor       int
	LockWait       time.Duration
	SummarizeEvery int
	NudgeAfter     time.Duration
}

// SettingsFromConfig extracts the handler tunables from cfg.
func SettingsFromConfig(cfg config.JobsConfig) QueueSettings {
	return QueueSettings{
		DueFloor:       cfg.DueFloor,
		LockWait:       cfg.LockWait,
		SummarizeEvery: cfg.SummarizeEvery,
		NudgeAfter:     cfg.NudgeAfter,
	}
}
