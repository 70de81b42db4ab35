package types

import "time"

// TaskStatus is the lifecycle of a background processing Task (§3).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task tracks one in-flight orchestrator run over a single Article.
type Task struct {
	ID        int64
	TaskID    string // unique, caller-facing identifier
	ArticleID int64
	Type      string // always "article_processing"

	Status      TaskStatus
	Progress    int // 0-100, monotonically non-decreasing
	CurrentStep string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Step identifies one element of the ordered processing sequence (§4.F).
type Step string

const (
	StepCreate   Step = "create"
	StepExtract  Step = "extract"
	StepTranslate Step = "translate"
	StepOptimise Step = "optimise"
	StepPublish  Step = "publish"
)

// StatusForStep maps a Step to the Article Status it sets while running (§4.F).
func StatusForStep(s Step) Status {
	switch s {
	case StepCreate:
		return StatusCreating
	case StepExtract:
		return StatusExtracting
	case StepTranslate:
		return StatusTranslating
	case StepOptimise:
		return StatusOptimising
	case StepPublish:
		return StatusReady // publish does not change the processing status machine
	default:
		return StatusFailed
	}
}
