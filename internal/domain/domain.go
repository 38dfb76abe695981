package domain

type Party struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

type Contract struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Type          string   `json:"type" enum:"Property Sale,Commercial Lease,Construction Escrow,Investment Property"`
	Status        string   `json:"status" enum:"Initiation,Preparation,Wire Details,In Review,Signatures,Funds Disbursed,Completed"`
	Parties       []Party  `json:"parties"`
	Assignee      string   `json:"assignee,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Description   string   `json:"description,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty" format:"date"`
	// CreatedBy owns the contract; SharedWith may also see and edit it.
	CreatedBy  string   `json:"created_by,omitempty"`
	SharedWith []string `json:"shared_with,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

// PartyNames returns the display names of the contract parties.
func (c Contract) PartyNames() []string {
	names := make([]string, 0, len(c.Parties))
	for _, p := range c.Parties {
		names = append(names, p.Name)
	}
	return names
}

type Recipient struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Status   string `json:"status" enum:"Pending,Signed,Declined"`
	SignedAt string `json:"signed_at,omitempty" format:"date-time"`
}

type SignatureRequest struct {
	ID         string      `json:"id"`
	Document   string      `json:"document"`
	DocumentID string      `json:"document_id,omitempty"`
	Parties    []string    `json:"parties"`
	Status     string      `json:"status" enum:"Pending,Completed,Rejected,Expired,Voided"`
	Signatures string      `json:"signatures"`
	ContractID string      `json:"contract_id"`
	Contract   string      `json:"contract"`
	Assignee   string      `json:"assignee"`
	DateSent   string      `json:"date_sent" format:"date"`
	DueDate    string      `json:"due_date,omitempty" format:"date"`
	Subject    string      `json:"subject,omitempty"`
	Message    string      `json:"message,omitempty"`
	Provider   string      `json:"provider" enum:"escra,docusign"`
	Recipients []Recipient `json:"recipients"`
	CreatedAt  string      `json:"created_at" format:"date-time"`
	UpdatedAt  string      `json:"updated_at" format:"date-time"`
}

type Document struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     string `json:"status" enum:"Draft,Active,Archived,Voided"`
	UploadedBy string `json:"uploaded_by"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mime_type,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task is a unit of closing work on a contract.
type Task struct {
	ID          string    `json:"id"`
	ContractID  string    `json:"contract_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	Status      string    `json:"status" enum:"To Do,Blocked,On Hold,In Progress,In Review,Done,Canceled"`
	Assignee    string    `json:"assignee"`
	DueDate     string    `json:"due_date,omitempty" format:"date"`
	Subtasks    []Subtask `json:"subtasks"`
	Progress    string    `json:"progress"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
}

type Comment struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	Author     string `json:"author"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
