package journey

import (
	"fmt"
	"time"
)

// Journey is a reusable multi-step outreach sequence template.
//
// Multi-tenant invariant: TenantID is required on every row.
// Steps are owned by the journey and cascade-deleted with it.
type Journey struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Name     string `json:"name" db:"name"`
	IsActive bool   `json:"is_active" db:"is_active"`

	// RepeatDays re-opens the journey for a lead after this many days.
	// Zero means no repeat.
	RepeatDays int `json:"repeat_days,omitempty" db:"repeat_days"`

	TriggerCriteria Criteria `json:"trigger_criteria" db:"trigger_criteria"`

	// Steps are ordered by StepOrder ascending. Populated by GetJourney.
	Steps []Step `json:"steps,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StepByID finds a step of this journey.
func (j Journey) StepByID(stepID string) (Step, bool) {
	for _, s := range j.Steps {
		if s.ID == stepID {
			return s, true
		}
	}
	return Step{}, false
}

// FirstStep returns the step with the lowest StepOrder.
func (j Journey) FirstStep() (Step, bool) {
	if len(j.Steps) == 0 {
		return Step{}, false
	}
	first := j.Steps[0]
	for _, s := range j.Steps[1:] {
		if s.StepOrder < first.StepOrder {
			first = s
		}
	}
	return first, true
}

// Criteria is a journey's enrollment/trigger predicate. All fields are
// optional and conjunctive; an empty Criteria matches every lead.
type Criteria struct {
	LeadStatus []string  `json:"lead_status,omitempty"`
	LeadTags   []string  `json:"lead_tags,omitempty"`
	AgeDays    *AgeRange `json:"lead_age_days,omitempty"`
	Brands     []string  `json:"brands,omitempty"`
	Sources    []string  `json:"sources,omitempty"`

	// AutoEnroll opts the journey into the periodic enrollment sweep.
	AutoEnroll bool `json:"auto_enroll"`
}

// AgeRange bounds lead age in whole days. Either bound may be nil (unbounded).
type AgeRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

type ActionType string

const (
	ActionCall         ActionType = "call"
	ActionSMS          ActionType = "sms"
	ActionEmail        ActionType = "email"
	ActionStatusChange ActionType = "status_change"
	ActionTagUpdate    ActionType = "tag_update"
	ActionWebhook      ActionType = "webhook"
	ActionDelay        ActionType = "delay"
)

type DelayType string

const (
	DelayImmediate       DelayType = "immediate"
	DelayFixedTime       DelayType = "fixed_time"
	DelayAfterPrevious   DelayType = "delay_after_previous"
	DelayAfterEnrollment DelayType = "delay_after_enrollment"
	DelaySpecificDays    DelayType = "specific_days"
)

// Step is one node of a journey.
//
// Invariant: StepOrder is unique per journey; ascending order is execution order.
type Step struct {
	ID        string `json:"id" db:"id"`
	JourneyID string `json:"journey_id" db:"journey_id"`
	StepOrder int    `json:"step_order" db:"step_order"`

	ActionType   ActionType   `json:"action_type" db:"action_type"`
	ActionConfig ActionConfig `json:"action_config" db:"action_config"`

	DelayType   DelayType   `json:"delay_type" db:"delay_type"`
	DelayConfig DelayConfig `json:"delay_config" db:"delay_config"`

	// Conditions gate this step on the outcome of the previously executed
	// step; a step with no conditions is always eligible.
	Conditions Conditions `json:"conditions" db:"conditions"`

	// IsExitPoint completes the lead journey after this step succeeds.
	IsExitPoint bool `json:"is_exit_point" db:"is_exit_point"`
	// IsDayEnd marks a logical day boundary for reporting consumers;
	// it does not alter scheduling.
	IsDayEnd bool `json:"is_day_end" db:"is_day_end"`
}

// ActionConfig is a tagged union: exactly the member matching the step's
// ActionType must be set. Validated when the journey is authored, not at
// execution time.
type ActionConfig struct {
	Call    *CallActionConfig    `json:"call,omitempty"`
	SMS     *SMSActionConfig     `json:"sms,omitempty"`
	Email   *EmailActionConfig   `json:"email,omitempty"`
	Status  *StatusChangeConfig  `json:"status_change,omitempty"`
	Tags    *TagUpdateConfig     `json:"tag_update,omitempty"`
	Webhook *WebhookActionConfig `json:"webhook,omitempty"`
}

type CallActionConfig struct {
	// TransferNumber receives the call once the lead answers.
	TransferNumber string `json:"transfer_number,omitempty"`
	// DIDStrategy overrides the tenant's caller-ID selection strategy.
	DIDStrategy string `json:"did_strategy,omitempty"`
}

type SMSActionConfig struct {
	Body string `json:"body"`
}

type EmailActionConfig struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type StatusChangeConfig struct {
	Status string `json:"status"`
}

type TagUpdateConfig struct {
	Add []string `json:"add"`
}

type WebhookActionConfig struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"` // defaults to POST
}

// DelayConfig is a tagged union keyed by the step's DelayType.
type DelayConfig struct {
	// Hours/Days apply to delay_after_previous and delay_after_enrollment.
	Hours int `json:"hours,omitempty"`
	Days  int `json:"days,omitempty"`

	// TimeOfDay ("15:04") applies to fixed_time and specific_days.
	TimeOfDay string `json:"time_of_day,omitempty"`
	// Date ("2006-01-02") optionally pins fixed_time to a calendar day.
	Date string `json:"date,omitempty"`

	// Weekdays applies to specific_days (0 = Sunday, per time.Weekday).
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// Duration returns the configured offset for the delay_after_* types.
func (c DelayConfig) Duration() time.Duration {
	return time.Duration(c.Days)*24*time.Hour + time.Duration(c.Hours)*time.Hour
}

// Conditions gate step selection on carry-over context from prior steps.
type Conditions struct {
	// CallOutcomes accepts the step only when the last call outcome is one
	// of these values.
	CallOutcomes []string `json:"call_outcomes,omitempty"`
}

// Empty reports whether no condition is configured.
func (c Conditions) Empty() bool { return len(c.CallOutcomes) == 0 }

// SatisfiedBy evaluates the conditions against context data.
// A step with no conditions always satisfies.
func (c Conditions) SatisfiedBy(contextData map[string]any) bool {
	if c.Empty() {
		return true
	}
	last, _ := contextData[CtxLastCallOutcome].(string)
	if last == "" {
		return false
	}
	for _, o := range c.CallOutcomes {
		if o == last {
			return true
		}
	}
	return false
}

// Context data keys written by executors and the dispatcher.
const (
	CtxLastCallOutcome = "last_call_outcome"
	CtxLastOutcome     = "last_outcome"
)

type LeadJourneyStatus string

const (
	LeadJourneyActive    LeadJourneyStatus = "active"
	LeadJourneyPaused    LeadJourneyStatus = "paused"
	LeadJourneyCompleted LeadJourneyStatus = "completed"
	LeadJourneyFailed    LeadJourneyStatus = "failed"
	LeadJourneyExited    LeadJourneyStatus = "exited"
)

// Terminal reports whether the status permits no further transitions.
func (s LeadJourneyStatus) Terminal() bool {
	switch s {
	case LeadJourneyCompleted, LeadJourneyFailed, LeadJourneyExited:
		return true
	default:
		return false
	}
}

// LeadJourney is one lead's live progress instance through a journey.
//
// Invariant: at most one LeadJourney with status in {active, paused}
// exists per (lead, journey); enforced by a partial unique index.
// Mutated only by the dispatcher and explicit pause/resume actions.
type LeadJourney struct {
	ID        string `json:"id" db:"id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	LeadID    string `json:"lead_id" db:"lead_id"`
	JourneyID string `json:"journey_id" db:"journey_id"`

	Status LeadJourneyStatus `json:"status" db:"status"`

	// CurrentStepID references a step of JourneyID, or is empty before the
	// first dispatch.
	CurrentStepID string `json:"current_step_id,omitempty" db:"current_step_id"`

	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	NextExecutionTime *time.Time `json:"next_execution_time,omitempty" db:"next_execution_time"`
	LastExecutionTime *time.Time `json:"last_execution_time,omitempty" db:"last_execution_time"`

	// ContextData is free-form carry-over state (e.g. last call outcome).
	ContextData map[string]any `json:"context_data,omitempty" db:"context_data"`

	// LastError is retained on failed/exited rows for dashboard display.
	LastError string `json:"last_error,omitempty" db:"last_error"`
}

type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionProcessing ExecutionStatus = "processing"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionCancelled  ExecutionStatus = "cancelled"
)

// Execution is one scheduled invocation of a single step for a LeadJourney:
// the scheduling cursor.
//
// Invariant: at most one non-terminal (pending/processing) execution exists
// per LeadJourney at any time. Terminal rows are retained for audit.
type Execution struct {
	ID            string `json:"id" db:"id"`
	LeadJourneyID string `json:"lead_journey_id" db:"lead_journey_id"`
	StepID        string `json:"step_id" db:"step_id"`

	ScheduledTime time.Time       `json:"scheduled_time" db:"scheduled_time"`
	Status        ExecutionStatus `json:"status" db:"status"`

	Attempts    int        `json:"attempts" db:"attempts"`
	LastAttempt *time.Time `json:"last_attempt,omitempty" db:"last_attempt"`

	Result       string `json:"result,omitempty" db:"result"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
}

// ValidateSteps checks a journey's step list at authoring time so that the
// dispatcher never sees a malformed config.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("journey: at least one step is required")
	}
	seen := make(map[int]struct{}, len(steps))
	for _, s := range steps {
		if _, dup := seen[s.StepOrder]; dup {
			return fmt.Errorf("journey: duplicate step_order %d", s.StepOrder)
		}
		seen[s.StepOrder] = struct{}{}

		if err := s.ActionConfig.validate(s.ActionType); err != nil {
			return fmt.Errorf("journey: step %d: %w", s.StepOrder, err)
		}
		if err := s.DelayConfig.validate(s.DelayType); err != nil {
			return fmt.Errorf("journey: step %d: %w", s.StepOrder, err)
		}
	}
	return nil
}

func (c ActionConfig) validate(t ActionType) error {
	switch t {
	case ActionCall:
		// All call config fields are optional; tenant defaults apply.
		return nil
	case ActionSMS:
		if c.SMS == nil || c.SMS.Body == "" {
			return fmt.Errorf("sms action requires a body")
		}
	case ActionEmail:
		if c.Email == nil || c.Email.Subject == "" || c.Email.Body == "" {
			return fmt.Errorf("email action requires subject and body")
		}
	case ActionStatusChange:
		if c.Status == nil || c.Status.Status == "" {
			return fmt.Errorf("status_change action requires a target status")
		}
	case ActionTagUpdate:
		if c.Tags == nil || len(c.Tags.Add) == 0 {
			return fmt.Errorf("tag_update action requires at least one tag")
		}
	case ActionWebhook:
		if c.Webhook == nil || c.Webhook.URL == "" {
			return fmt.Errorf("webhook action requires a url")
		}
	case ActionDelay:
		return nil
	default:
		return fmt.Errorf("unknown action type %q", t)
	}
	return nil
}

func (c DelayConfig) validate(t DelayType) error {
	switch t {
	case DelayImmediate:
		return nil
	case DelayFixedTime:
		if c.TimeOfDay == "" {
			return fmt.Errorf("fixed_time delay requires time_of_day")
		}
	case DelayAfterPrevious, DelayAfterEnrollment:
		if c.Duration() <= 0 {
			return fmt.Errorf("%s delay requires hours or days", t)
		}
	case DelaySpecificDays:
		if len(c.Weekdays) == 0 {
			return fmt.Errorf("specific_days delay requires weekdays")
		}
		if c.TimeOfDay == "" {
			return fmt.Errorf("specific_days delay requires time_of_day")
		}
	default:
		return fmt.Errorf("unknown delay type %q", t)
	}
	return nil
}
