package server

import (
	"encoding/json"

	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/engine/auth"
	"escra/internal/views"
)

// Request payloads

type CreateContractRequest struct {
	ID            *string        `json:"id,omitempty"`
	Title         string         `json:"title"`
	Type          string         `json:"type,omitempty" enum:"Property Sale,Commercial Lease,Construction Escrow,Investment Property"`
	Parties       []domain.Party `json:"parties,omitempty"`
	Assignee      string         `json:"assignee,omitempty"`
	Value         *float64       `json:"value,omitempty"`
	Description   string         `json:"description,omitempty"`
	EffectiveDate string         `json:"effective_date,omitempty"`
	SharedWith    []string       `json:"shared_with,omitempty" doc:"Callers who may see the contract besides its creator"`
}

// UpdateContractRequest changes only the fields present. An empty
// shared_with list unshares the contract.
type UpdateContractRequest struct {
	Title         *string        `json:"title,omitempty"`
	Type          *string        `json:"type,omitempty" enum:"Property Sale,Commercial Lease,Construction Escrow,Investment Property"`
	Parties       []domain.Party `json:"parties,omitempty"`
	Assignee      *string        `json:"assignee,omitempty"`
	Value         *float64       `json:"value,omitempty"`
	Description   *string        `json:"description,omitempty"`
	EffectiveDate *string        `json:"effective_date,omitempty"`
	SharedWith    []string       `json:"shared_with,omitempty"`
}

func (in UpdateContractRequest) patch() engine.ContractPatch {
	p := engine.ContractPatch{
		Title:         in.Title,
		Type:          in.Type,
		Assignee:      in.Assignee,
		Value:         in.Value,
		Description:   in.Description,
		EffectiveDate: in.EffectiveDate,
	}
	if in.Parties != nil {
		p.Parties = &in.Parties
	}
	if in.SharedWith != nil {
		p.SharedWith = &in.SharedWith
	}
	return p
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	Status      string   `json:"status,omitempty" enum:"To Do,Blocked,On Hold,In Progress,In Review,Done,Canceled"`
	Assignee    string   `json:"assignee,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Subtasks    []string `json:"subtasks,omitempty" doc:"Subtask titles"`
}

type UpdateTaskRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Type        *string  `json:"type,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"To Do,Blocked,On Hold,In Progress,In Review,Done,Canceled"`
	Assignee    *string  `json:"assignee,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	AddSubtasks []string `json:"add_subtasks,omitempty"`
	Toggle      []string `json:"toggle_subtasks,omitempty" doc:"Subtask ids whose completion flips"`
}

func (in UpdateTaskRequest) patch() engine.TaskPatch {
	return engine.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Status:      in.Status,
		Assignee:    in.Assignee,
		DueDate:     in.DueDate,
		AddSubtasks: in.AddSubtasks,
		Toggle:      in.Toggle,
	}
}

type CreateCommentRequest struct {
	Content string `json:"content"`
}

type AssignRoleRequest struct {
	Role string `json:"role" enum:"admin,creator,editor,viewer"`
}

type SetContractStatusRequest struct {
	// Status defaults to the next stage.
	Status string `json:"status,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

type RecipientRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type CreateSignatureRequest struct {
	ID         *string            `json:"id,omitempty"`
	ContractID string             `json:"contract_id"`
	Document   string             `json:"document,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
	Recipients []RecipientRequest `json:"recipients"`
	Parties    []string           `json:"parties,omitempty"`
	DueDate    string             `json:"due_date,omitempty"`
	Subject    string             `json:"subject,omitempty"`
	Message    string             `json:"message,omitempty"`
	Provider   string             `json:"provider,omitempty" enum:"escra,docusign"`
	Assignee   string             `json:"assignee,omitempty"`
}

type CreateDocumentRequest struct {
	ContractID string `json:"contract_id"`
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Status     string `json:"status,omitempty" enum:"Draft,Active,Archived,Voided"`
	Size       int64  `json:"size,omitempty" minimum:"0"`
	MimeType   string `json:"mime_type,omitempty"`
}

// listInput carries the shared list query parameters.
type listInput struct {
	Q        string   `query:"q" doc:"Case-insensitive search term"`
	Status   []string `query:"status,explode" doc:"Status filter; All or empty keeps every status"`
	Assignee []string `query:"assignee,explode" doc:"Assignee filter; __ME__ selects the current user"`
	Contract []string `query:"contract,explode" doc:"Contract id filter"`
	Sender   string   `query:"sender" doc:"anyone, me or to_me"`
	Tab      string   `query:"tab" doc:"Configured tab scope"`
	Sort     string   `query:"sort" doc:"Sort key; prefix with - for descending"`
	Dir      string   `query:"dir" doc:"asc or desc"`
	Limit    int      `query:"limit" minimum:"0" maximum:"500"`
	Offset   int      `query:"offset" minimum:"0"`
}

func (in listInput) params() views.Params {
	return views.Params{
		Search:    in.Q,
		Statuses:  in.Status,
		Assignees: in.Assignee,
		Contracts: in.Contract,
		Sender:    in.Sender,
		Tab:       in.Tab,
		Sort:      in.Sort,
		Dir:       in.Dir,
		Offset:    in.Offset,
		Limit:     in.Limit,
	}
}

// Responses

type signatureList struct {
	Signatures []domain.SignatureRequest `json:"signatures"`
	Total      int                       `json:"total"`
	Offset     int                       `json:"offset"`
	Limit      int                       `json:"limit"`
}

type taskList struct {
	Tasks []domain.Task `json:"tasks"`
}

type commentList struct {
	Comments []domain.Comment `json:"comments"`
}

type roleList struct {
	Roles []auth.Assignment `json:"roles"`
}

type contractList struct {
	Contracts []domain.Contract `json:"contracts"`
	Total     int               `json:"total"`
	Offset    int               `json:"offset"`
	Limit     int               `json:"limit"`
}

type documentList struct {
	Documents []domain.Document `json:"documents"`
	Total     int               `json:"total"`
	Offset    int               `json:"offset"`
	Limit     int               `json:"limit"`
}

type StatusResponse struct {
	User       string         `json:"user"`
	Contracts  map[string]int `json:"contracts"`
	Signatures map[string]int `json:"signatures"`
	Documents  map[string]int `json:"documents"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func recipients(in []RecipientRequest) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(in))
	for _, r := range in {
		out = append(out, domain.Recipient{Name: r.Name, Email: r.Email})
	}
	return out
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
