package domain

import "fmt"

// Contract stages, in lifecycle order.
const (
	ContractInitiation     = "Initiation"
	ContractPreparation    = "Preparation"
	ContractWireDetails    = "Wire Details"
	ContractInReview       = "In Review"
	ContractSignatures     = "Signatures"
	ContractFundsDisbursed = "Funds Disbursed"
	ContractCompleted      = "Completed"
)

var ContractStages = []string{
	ContractInitiation,
	ContractPreparation,
	ContractWireDetails,
	ContractInReview,
	ContractSignatures,
	ContractFundsDisbursed,
	ContractCompleted,
}

var ContractTypes = []string{"Property Sale", "Commercial Lease", "Construction Escrow", "Investment Property"}

const (
	SignaturePending   = "Pending"
	SignatureCompleted = "Completed"
	SignatureRejected  = "Rejected"
	SignatureExpired   = "Expired"
	SignatureVoided    = "Voided"
)

var SignatureStatuses = []string{SignaturePending, SignatureCompleted, SignatureRejected, SignatureExpired, SignatureVoided}

const (
	RecipientPending  = "Pending"
	RecipientSigned   = "Signed"
	RecipientDeclined = "Declined"
)

var DocumentStatuses = []string{"Draft", "Active", "Archived", "Voided"}

const (
	ProviderEscra    = "escra"
	ProviderDocuSign = "docusign"
)

var Providers = []string{ProviderEscra, ProviderDocuSign}

const (
	TaskToDo       = "To Do"
	TaskBlocked    = "Blocked"
	TaskOnHold     = "On Hold"
	TaskInProgress = "In Progress"
	TaskInReview   = "In Review"
	TaskDone       = "Done"
	TaskCanceled   = "Canceled"
)

var TaskStatuses = []string{TaskToDo, TaskBlocked, TaskOnHold, TaskInProgress, TaskInReview, TaskDone, TaskCanceled}

// DefaultTaskType is used when a task is created without a type.
const DefaultTaskType = "Task"

// Unassigned is the assignee shown for tasks nobody owns yet.
const Unassigned = "Unassigned"

// StageIndex returns the position of a contract stage, or -1.
func StageIndex(status string) int {
	for i, s := range ContractStages {
		if s == status {
			return i
		}
	}
	return -1
}

// NextStage returns the stage following status.
func NextStage(status string) (string, error) {
	i := StageIndex(status)
	if i < 0 {
		return "", fmt.Errorf("invalid contract status %q", status)
	}
	if i == len(ContractStages)-1 {
		return "", fmt.Errorf("contract already %s", ContractCompleted)
	}
	return ContractStages[i+1], nil
}

// ValidContractTransition allows one stage forward, or any stage when forced.
// Completed contracts never move.
func ValidContractTransition(from, to string, force bool) bool {
	fi, ti := StageIndex(from), StageIndex(to)
	if fi < 0 || ti < 0 || fi == ti {
		return false
	}
	if from == ContractCompleted {
		return false
	}
	if force {
		return true
	}
	return ti == fi+1
}

// SignatureFinal reports whether a signature request can no longer change.
func SignatureFinal(status string) bool {
	return status != SignaturePending
}

// Progress renders the "k of n" signature count.
func Progress(recipients []Recipient) string {
	signed := 0
	for _, r := range recipients {
		if r.Status == RecipientSigned {
			signed++
		}
	}
	return fmt.Sprintf("%d of %d", signed, len(recipients))
}

// SubtaskProgress renders the "k of n" count of completed subtasks.
func SubtaskProgress(subtasks []Subtask) string {
	done := 0
	for _, st := range subtasks {
		if st.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d of %d", done, len(subtasks))
}

func OneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
