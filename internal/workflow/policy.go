package workflow

import "apflow/internal/model"

// AuthorizationPolicy is the single source of truth for role rules consulted
// by the state machine on every gated transition.
type AuthorizationPolicy interface {
	// CanApprove reports whether the role may move an invoice forward in the
	// approval chain.
	CanApprove(role model.Role) bool
	// CanReleasePayment reports whether the role may release payment, the
	// privileged sub-action behind PendingApproval -> Paid.
	CanReleasePayment(role model.Role) bool
	// ReleaseRoles names the roles allowed to release payment, for error
	// messages on denial.
	ReleaseRoles() []model.Role
}

// RolePolicy is the default policy: approvers and finance staff approve,
// but only finance managers and admins release payment.
type RolePolicy struct{}

var approverRoles = map[model.Role]bool{
	model.RoleApprover:       true,
	model.RoleFinanceManager: true,
	model.RoleAdmin:          true,
}

var releaseRoles = map[model.Role]bool{
	model.RoleFinanceManager: true,
	model.RoleAdmin:          true,
}

func (RolePolicy) CanApprove(role model.Role) bool {
	return approverRoles[role]
}

func (RolePolicy) CanReleasePayment(role model.Role) bool {
	return releaseRoles[role]
}

func (RolePolicy) ReleaseRoles() []model.Role {
	return []model.Role{model.RoleFinanceManager, model.RoleAdmin}
}
