// Package lifecycle owns the approval state machine of a notification. It performs no I/O;
// callers persist the mutated record and pair every Transition with an audit entry.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicalert/civicalert/internal/models"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
	ActionExpire  Action = "expire"
)

// ErrInvalidTransition is returned when an action is not legal for the current status.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// TransitionError describes which action was refused and from which status.
type TransitionError struct {
	Action Action
	From   models.NotificationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a notification in status %q", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// FieldViolation is a single rejected input to a transition.
type FieldViolation struct {
	Field   string
	Message string
	Value   any
}

// ValidationError reports malformed transition input. It is never returned for state problems.
type ValidationError struct {
	Action     Action
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return fmt.Sprintf("invalid %s input: %s", e.Action, strings.Join(parts, "; "))
}

// Transition records a completed state change.
type Transition struct {
	Action Action
	From   models.NotificationStatus
	To     models.NotificationStatus
	Actor  string
	At     time.Time
}

// StatusAllows reports whether action is legal from status.
func StatusAllows(action Action, status models.NotificationStatus) bool {
	switch action {
	case ActionApprove, ActionDeny, ActionExpire:
		return status == models.NotificationReceived
	default:
		return false
	}
}

// CanApprove reports whether n may be approved.
func CanApprove(n *models.Notification) bool {
	return n != nil && StatusAllows(ActionApprove, n.Status)
}

// CanDeny reports whether n may be denied.
func CanDeny(n *models.Notification) bool {
	return n != nil && StatusAllows(ActionDeny, n.Status)
}

// CanExpire reports whether n may be expired by the sweeper.
func CanExpire(n *models.Notification) bool {
	return n != nil && StatusAllows(ActionExpire, n.Status)
}

// Approve moves a received notification to approved and stores its dispatch targets.
func Approve(n *models.Notification, approverID string, targetIDs, categoryIDs []string, now time.Time) (Transition, error) {
	var violations []FieldViolation
	if strings.TrimSpace(approverID) == "" {
		violations = append(violations, FieldViolation{Field: "approved_by", Message: "approver is required"})
	}
	targets := compact(targetIDs)
	if len(targets) == 0 {
		violations = append(violations, FieldViolation{Field: "target_ids", Message: "at least one target is required", Value: targetIDs})
	}
	categories := compact(categoryIDs)
	if len(categories) == 0 {
		violations = append(violations, FieldViolation{Field: "category_ids", Message: "at least one category is required", Value: categoryIDs})
	}
	if len(violations) > 0 {
		return Transition{}, &ValidationError{Action: ActionApprove, Violations: violations}
	}

	if !CanApprove(n) {
		return Transition{}, refuse(ActionApprove, n)
	}

	at := now.UTC()
	from := n.Status
	n.Status = models.NotificationApproved
	n.ApprovedBy = &approverID
	n.ApprovedAt = &at
	n.TargetIDs = models.EncodeIDs(targets)
	n.CategoryIDs = models.EncodeIDs(categories)

	return Transition{Action: ActionApprove, From: from, To: n.Status, Actor: approverID, At: at}, nil
}

// Deny moves a received notification to denied. The reason is mandatory.
func Deny(n *models.Notification, denierID, reason string, now time.Time) (Transition, error) {
	var violations []FieldViolation
	if strings.TrimSpace(denierID) == "" {
		violations = append(violations, FieldViolation{Field: "denied_by", Message: "denier is required"})
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		violations = append(violations, FieldViolation{Field: "reason", Message: "reason is required"})
	}
	if len(violations) > 0 {
		return Transition{}, &ValidationError{Action: ActionDeny, Violations: violations}
	}

	if !CanDeny(n) {
		return Transition{}, refuse(ActionDeny, n)
	}

	at := now.UTC()
	from := n.Status
	n.Status = models.NotificationDenied
	n.DenialReason = reason
	n.DeniedBy = &denierID
	n.DeniedAt = &at

	return Transition{Action: ActionDeny, From: from, To: n.Status, Actor: denierID, At: at}, nil
}

// Expire retires a notification that was never reviewed. The scheduler is the actor.
func Expire(n *models.Notification, now time.Time) (Transition, error) {
	if !CanExpire(n) {
		return Transition{}, refuse(ActionExpire, n)
	}

	at := now.UTC()
	from := n.Status
	n.Status = models.NotificationExpired
	n.ExpiredAt = &at

	return Transition{Action: ActionExpire, From: from, To: n.Status, Actor: "scheduler", At: at}, nil
}

func refuse(action Action, n *models.Notification) error {
	var from models.NotificationStatus
	if n != nil {
		from = n.Status
	}
	return &TransitionError{Action: action, From: from}
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
