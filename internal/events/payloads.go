package events

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
	TaskRef() string
}

// =============================================================================
// TASK LIFECYCLE
// =============================================================================

type TaskCreatedPayload struct {
	TaskID    string `json:"task_id"`
	Objective string `json:"objective"`
}

func (p TaskCreatedPayload) EventType() EventType { return EventTaskCreated }
func (p TaskCreatedPayload) TaskRef() string      { return p.TaskID }

type TaskStartedPayload struct {
	TaskID     string `json:"task_id"`
	TotalSteps int    `json:"total_steps"`
}

func (p TaskStartedPayload) EventType() EventType { return EventTaskStarted }
func (p TaskStartedPayload) TaskRef() string      { return p.TaskID }

type TaskPausedPayload struct {
	TaskID string `json:"task_id"`
	Cursor int    `json:"cursor"`
}

func (p TaskPausedPayload) EventType() EventType { return EventTaskPaused }
func (p TaskPausedPayload) TaskRef() string      { return p.TaskID }

type TaskResumedPayload struct {
	TaskID string `json:"task_id"`
	Cursor int    `json:"cursor"`
}

func (p TaskResumedPayload) EventType() EventType { return EventTaskResumed }
func (p TaskResumedPayload) TaskRef() string      { return p.TaskID }

type TaskCompletedPayload struct {
	TaskID string `json:"task_id"`
	Steps  int    `json:"steps"`
}

func (p TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }
func (p TaskCompletedPayload) TaskRef() string      { return p.TaskID }

type TaskFailedPayload struct {
	TaskID string `json:"task_id"`
	StepID string `json:"step_id"`
	Error  string `json:"error,omitempty"`
}

func (p TaskFailedPayload) EventType() EventType { return EventTaskFailed }
func (p TaskFailedPayload) TaskRef() string      { return p.TaskID }

type TaskCancelledPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func (p TaskCancelledPayload) EventType() EventType { return EventTaskCancelled }
func (p TaskCancelledPayload) TaskRef() string      { return p.TaskID }

// =============================================================================
// STEP EXECUTION
// =============================================================================

type StepStartedPayload struct {
	TaskID     string `json:"task_id"`
	StepID     string `json:"step_id"`
	Capability string `json:"capability"`
	Attempt    int    `json:"attempt"`
}

func (p StepStartedPayload) EventType() EventType { return EventStepStarted }
func (p StepStartedPayload) TaskRef() string      { return p.TaskID }

type StepCompletedPayload struct {
	TaskID  string `json:"task_id"`
	StepID  string `json:"step_id"`
	Attempt int    `json:"attempt"`
}

func (p StepCompletedPayload) EventType() EventType { return EventStepCompleted }
func (p StepCompletedPayload) TaskRef() string      { return p.TaskID }

type StepFailedPayload struct {
	TaskID  string `json:"task_id"`
	StepID  string `json:"step_id"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

func (p StepFailedPayload) EventType() EventType { return EventStepFailed }
func (p StepFailedPayload) TaskRef() string      { return p.TaskID }

// =============================================================================
// ASSESSMENT & SCHEDULER
// =============================================================================

type AssessmentReadyPayload struct {
	TaskID  string  `json:"task_id"`
	Overall float64 `json:"overall"`
}

func (p AssessmentReadyPayload) EventType() EventType { return EventAssessmentReady }
func (p AssessmentReadyPayload) TaskRef() string      { return p.TaskID }

type ScheduleTriggerPayload struct {
	Entry  string `json:"entry"`
	TaskID string `json:"task_id"`
}

func (p ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }
func (p ScheduleTriggerPayload) TaskRef() string      { return p.TaskID }
