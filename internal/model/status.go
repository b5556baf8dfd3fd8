package model

// Status is the workflow state of an invoice in the approval lifecycle.
type Status string

const (
	StatusReceived           Status = "RECEIVED"
	StatusDigitizing         Status = "DIGITIZING"
	StatusVerified           Status = "VERIFIED"
	StatusValidationRequired Status = "VALIDATION_REQUIRED"
	StatusMatchDiscrepancy   Status = "MATCH_DISCREPANCY"
	StatusPendingApproval    Status = "PENDING_APPROVAL"
	StatusPaid               Status = "PAID"
	StatusRejected           Status = "REJECTED"
)

var validStatuses = map[Status]bool{
	StatusReceived:           true,
	StatusDigitizing:         true,
	StatusVerified:           true,
	StatusValidationRequired: true,
	StatusMatchDiscrepancy:   true,
	StatusPendingApproval:    true,
	StatusPaid:               true,
	StatusRejected:           true,
}

var terminalStatuses = map[Status]bool{
	StatusPaid:     true,
	StatusRejected: true,
}

// IsValid reports whether s is a known workflow status.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

func (s Status) String() string {
	return string(s)
}

// Role identifies the acting role for gated workflow transitions.
type Role string

const (
	RoleAPClerk        Role = "AP_CLERK"
	RoleApprover       Role = "APPROVER"
	RoleFinanceManager Role = "FINANCE_MANAGER"
	RoleAdmin          Role = "ADMIN"
	RoleSystem         Role = "SYSTEM"
)

// Action is a workflow action requested against an invoice.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionReset   Action = "RESET"
)
