package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"apflow/internal/model"
)

// ErrInvalidTransition is returned when the requested action is not valid
// for the invoice's current status. The invoice is left untouched and no
// log entry is written.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// AuthorizationError reports a role-gated transition attempted by an
// insufficient role. It names the roles that would be allowed.
type AuthorizationError struct {
	Action   model.Action
	Role     model.Role
	Required []model.Role
}

func (e *AuthorizationError) Error() string {
	names := make([]string, len(e.Required))
	for i, r := range e.Required {
		names[i] = string(r)
	}
	return fmt.Sprintf("role %s may not perform %s: requires one of %s",
		e.Role, e.Action, strings.Join(names, ", "))
}

// Actor is who performs a workflow action.
type Actor struct {
	Name string
	Role model.Role
}

var systemActor = Actor{Name: "pipeline", Role: model.RoleSystem}

// Machine applies workflow transitions to invoices. It validates the
// current state and the acting role before mutating anything, so a rejected
// action leaves no partial state. Each successful transition appends one
// WorkflowLogEntry; entries are never edited or removed.
type Machine struct {
	policy AuthorizationPolicy
}

// NewMachine builds a Machine using the given authorization policy.
func NewMachine(policy AuthorizationPolicy) *Machine {
	return &Machine{policy: policy}
}

// Derive computes the status an invoice lands in when its pipeline
// completes, from the validation and match outcomes.
func Derive(v model.ValidationResult, m model.MatchResult) model.Status {
	switch {
	case !v.IsValid:
		return model.StatusValidationRequired
	case !m.IsMatched:
		return model.StatusMatchDiscrepancy
	default:
		return model.StatusVerified
	}
}

// Begin moves a freshly received (or reset) invoice into Digitizing at the
// start of a pipeline run.
func (mc *Machine) Begin(inv *model.Invoice, now time.Time) error {
	if inv.Status != model.StatusReceived {
		return fmt.Errorf("%w: cannot start processing from %s", ErrInvalidTransition, inv.Status)
	}
	mc.apply(inv, model.StatusDigitizing, "EXTRACT", "", systemActor, now)
	return nil
}

// Complete records the pipeline outcome: it stores the validation and match
// results, derives the resulting status and stamps processedAt.
func (mc *Machine) Complete(inv *model.Invoice, v model.ValidationResult, m model.MatchResult, now time.Time) error {
	if inv.Status != model.StatusDigitizing {
		return fmt.Errorf("%w: cannot complete processing from %s", ErrInvalidTransition, inv.Status)
	}
	inv.Validation = &v
	inv.Match = &m
	to := Derive(v, m)
	comments := ""
	if len(m.Discrepancies) > 0 {
		comments = strings.Join(m.Discrepancies, "; ")
	} else if len(v.Errors) > 0 {
		comments = strings.Join(v.Errors, "; ")
	}
	mc.apply(inv, to, "PROCESS", comments, systemActor, now)
	inv.ProcessedAt = &now
	return nil
}

// Apply performs an explicit workflow action on behalf of actor. The state
// precondition is checked first, then authorization; a failure of either
// returns an error with the invoice unchanged.
func (mc *Machine) Apply(inv *model.Invoice, action model.Action, actor Actor, comments string, now time.Time) error {
	switch action {
	case model.ActionApprove:
		return mc.approve(inv, actor, comments, now)
	case model.ActionReject:
		return mc.reject(inv, actor, comments, now)
	case model.ActionReset:
		return mc.reset(inv, actor, comments, now)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
}

func (mc *Machine) approve(inv *model.Invoice, actor Actor, comments string, now time.Time) error {
	switch inv.Status {
	case model.StatusVerified:
		if !mc.policy.CanApprove(actor.Role) {
			return &AuthorizationError{
				Action:   model.ActionApprove,
				Role:     actor.Role,
				Required: []model.Role{model.RoleApprover, model.RoleFinanceManager, model.RoleAdmin},
			}
		}
		mc.apply(inv, model.StatusPendingApproval, string(model.ActionApprove), comments, actor, now)
		inv.ApprovedAt = &now
		return nil
	case model.StatusPendingApproval:
		// Payment release is a privileged sub-action distinct from the
		// generic approve permission.
		if !mc.policy.CanReleasePayment(actor.Role) {
			return &AuthorizationError{
				Action:   model.ActionApprove,
				Role:     actor.Role,
				Required: mc.policy.ReleaseRoles(),
			}
		}
		mc.apply(inv, model.StatusPaid, string(model.ActionApprove), comments, actor, now)
		inv.PaidAt = &now
		return nil
	default:
		return fmt.Errorf("%w: cannot APPROVE from %s", ErrInvalidTransition, inv.Status)
	}
}

func (mc *Machine) reject(inv *model.Invoice, actor Actor, comments string, now time.Time) error {
	if inv.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot REJECT from terminal state %s", ErrInvalidTransition, inv.Status)
	}
	if !mc.policy.CanApprove(actor.Role) {
		return &AuthorizationError{
			Action:   model.ActionReject,
			Role:     actor.Role,
			Required: []model.Role{model.RoleApprover, model.RoleFinanceManager, model.RoleAdmin},
		}
	}
	mc.apply(inv, model.StatusRejected, string(model.ActionReject), comments, actor, now)
	return nil
}

// reset returns the invoice to Received for reprocessing, clearing all
// downstream pipeline state.
func (mc *Machine) reset(inv *model.Invoice, actor Actor, comments string, now time.Time) error {
	if inv.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot RESET from terminal state %s", ErrInvalidTransition, inv.Status)
	}
	if inv.Status == model.StatusReceived {
		return fmt.Errorf("%w: invoice is already awaiting processing", ErrInvalidTransition)
	}
	mc.apply(inv, model.StatusReceived, string(model.ActionReset), comments, actor, now)
	inv.Validation = nil
	inv.Match = nil
	inv.ProcessedAt = nil
	inv.ApprovedAt = nil
	return nil
}

func (mc *Machine) apply(inv *model.Invoice, to model.Status, action, comments string, actor Actor, now time.Time) {
	inv.WorkflowLog = append(inv.WorkflowLog, model.WorkflowLogEntry{
		From:      inv.Status,
		To:        to,
		Action:    action,
		Comments:  comments,
		Actor:     actor.Name,
		Timestamp: now,
	})
	inv.Status = to
}
