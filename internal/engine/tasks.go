package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"escra/internal/domain"
	"escra/internal/engine/auth"
	"escra/internal/events"
	"escra/internal/projection"
	"escra/internal/repo"
)

const taskPrefix = "TSK-"

// taskNumber returns the sequence part of a task id such as TSK-007.
func taskNumber(id string) int64 {
	rest, ok := strings.CutPrefix(id, taskPrefix)
	if !ok {
		return 0
	}
	return projection.ParseID(rest)
}

type TaskCreateOptions struct {
	ContractID  string
	Title       string
	Description string
	Type        string
	Status      string
	Assignee    string
	DueDate     string
	// Subtasks are titles; each starts incomplete.
	Subtasks []string
	Actor    auth.Actor
}

// TaskPatch holds the task fields to change; nil fields are kept.
type TaskPatch struct {
	Title       *string
	Description *string
	Type        *string
	Status      *string
	Assignee    *string
	DueDate     *string
	// AddSubtasks appends incomplete subtasks with these titles.
	AddSubtasks []string
	// Toggle flips the completion of the listed subtask ids.
	Toggle []string
}

func validateTask(t domain.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return invalidf("task title is required")
	}
	if !domain.OneOf(t.Status, domain.TaskStatuses) {
		return invalidf("task status %q must be one of %s", t.Status, strings.Join(domain.TaskStatuses, ", "))
	}
	if t.DueDate != "" && projection.ParseDate(t.DueDate).Unix() == 0 {
		return invalidf("due date %q is not a date", t.DueDate)
	}
	return nil
}

func appendSubtasks(list []domain.Subtask, titles []string) ([]domain.Subtask, error) {
	next := len(list) + 1
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, invalidf("subtask title is required")
		}
		list = append(list, domain.Subtask{ID: fmt.Sprintf("sub-%d", next), Title: title})
		next++
	}
	return list, nil
}

// writable loads contract id for a caller allowed perm on it.
func (e Engine) writable(ctx context.Context, tx *sql.Tx, id, perm string, who auth.Actor) (domain.Contract, auth.Actor, error) {
	a, err := e.resolve(ctx, tx, who)
	if err != nil {
		return domain.Contract{}, a, err
	}
	if err := a.Require(perm); err != nil {
		return domain.Contract{}, a, err
	}
	c, err := e.visibleContract(ctx, tx, id, a)
	return c, a, err
}

func (e Engine) ListTasks(ctx context.Context, contractID string, who auth.Actor) ([]domain.Task, error) {
	if _, err := e.GetContract(ctx, contractID, who); err != nil {
		return nil, err
	}
	return e.Repo.ListTasks(ctx, contractID)
}

// CreateTask adds a task to a contract. Ids run TSK-001, TSK-002 and so on
// across the workspace.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	now := e.timestamp()
	t := domain.Task{
		ContractID:  opts.ContractID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Type:        opts.Type,
		Status:      opts.Status,
		Assignee:    strings.TrimSpace(opts.Assignee),
		DueDate:     opts.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stamp(&t.Type, domain.DefaultTaskType)
	stamp(&t.Status, domain.TaskToDo)
	stamp(&t.Assignee, domain.Unassigned)
	if err := validateTask(t); err != nil {
		return domain.Task{}, err
	}
	subtasks, err := appendSubtasks([]domain.Subtask{}, opts.Subtasks)
	if err != nil {
		return domain.Task{}, err
	}
	t.Subtasks = subtasks
	t.Progress = domain.SubtaskProgress(t.Subtasks)
	var a auth.Actor
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if _, a, err = e.writable(ctx, tx, opts.ContractID, auth.PermTaskWrite, opts.Actor); err != nil {
			return err
		}
		n, err := e.Repo.NextID(ctx, tx, repo.SeqTask)
		if err != nil {
			return err
		}
		t.ID = fmt.Sprintf("%s%03d", taskPrefix, projection.ParseID(n))
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Repo.TouchContract(ctx, tx, t.ContractID, now); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskCreated, "contract", t.ContractID, a.ID, events.EventPayload{
			"task_id": t.ID, "title": t.Title, "status": t.Status,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.committed(events.TaskCreated, t.ID, a.ID)
	return t, nil
}

// UpdateTask merges p into task id of contractID.
func (e Engine) UpdateTask(ctx context.Context, contractID, id string, p TaskPatch, who auth.Actor) (domain.Task, error) {
	var t domain.Task
	var a auth.Actor
	var fields []string
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if _, a, err = e.writable(ctx, tx, contractID, auth.PermTaskWrite, who); err != nil {
			return err
		}
		if t, err = e.Repo.GetTaskTx(ctx, tx, contractID, id); err != nil {
			return err
		}
		if fields, err = applyTaskPatch(&t, p); err != nil {
			return err
		}
		t.UpdatedAt = e.timestamp()
		t.Progress = domain.SubtaskProgress(t.Subtasks)
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Repo.TouchContract(ctx, tx, contractID, t.UpdatedAt); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskUpdated, "contract", contractID, a.ID, events.EventPayload{
			"task_id": t.ID, "fields": fields,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.committed(events.TaskUpdated, id, a.ID)
	return t, nil
}

func applyTaskPatch(t *domain.Task, p TaskPatch) ([]string, error) {
	var fields []string
	set := func(dst *string, v *string, name string) {
		if v != nil {
			*dst = *v
			fields = append(fields, name)
		}
	}
	set(&t.Title, p.Title, "title")
	set(&t.Description, p.Description, "description")
	set(&t.Type, p.Type, "type")
	set(&t.Status, p.Status, "status")
	set(&t.Assignee, p.Assignee, "assignee")
	set(&t.DueDate, p.DueDate, "due_date")
	t.Title = strings.TrimSpace(t.Title)
	stamp(&t.Type, domain.DefaultTaskType)
	stamp(&t.Assignee, domain.Unassigned)
	if len(p.AddSubtasks) > 0 || len(p.Toggle) > 0 {
		subtasks, err := appendSubtasks(t.Subtasks, p.AddSubtasks)
		if err != nil {
			return nil, err
		}
		for _, sid := range p.Toggle {
			found := false
			for i := range subtasks {
				if subtasks[i].ID == sid {
					subtasks[i].Completed = !subtasks[i].Completed
					found = true
				}
			}
			if !found {
				return nil, invalidf("task %s has no subtask %q", t.ID, sid)
			}
		}
		t.Subtasks = subtasks
		fields = append(fields, "subtasks")
	}
	if len(fields) == 0 {
		return nil, invalidf("no fields to update")
	}
	return fields, validateTask(*t)
}

func (e Engine) DeleteTask(ctx context.Context, contractID, id string, who auth.Actor) error {
	var a auth.Actor
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if _, a, err = e.writable(ctx, tx, contractID, auth.PermTaskWrite, who); err != nil {
			return err
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, contractID, id)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTask(ctx, tx, contractID, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskDeleted, "contract", contractID, a.ID, events.EventPayload{
			"task_id": t.ID, "title": t.Title,
		})
	})
	if err != nil {
		return err
	}
	e.committed(events.TaskDeleted, id, a.ID)
	return nil
}

// AddComment posts content on a contract as who.
func (e Engine) AddComment(ctx context.Context, contractID, content string, who auth.Actor) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, invalidf("comment content is required")
	}
	var cm domain.Comment
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		_, a, err := e.writable(ctx, tx, contractID, auth.PermCommentWrite, who)
		if err != nil {
			return err
		}
		cm = domain.Comment{
			ID:         uuid.NewString(),
			ContractID: contractID,
			Author:     a.ID,
			Content:    content,
			CreatedAt:  e.timestamp(),
		}
		if err := e.Repo.InsertComment(ctx, tx, cm); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.CommentAdded, "contract", contractID, a.ID, events.EventPayload{"comment_id": cm.ID})
	})
	if err != nil {
		return domain.Comment{}, err
	}
	e.committed(events.CommentAdded, contractID, cm.Author)
	return cm, nil
}

func (e Engine) ListComments(ctx context.Context, contractID string, who auth.Actor) ([]domain.Comment, error) {
	if _, err := e.GetContract(ctx, contractID, who); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, contractID)
}

// ContractActivity returns the newest events recorded against a contract,
// task and comment changes included.
func (e Engine) ContractActivity(ctx context.Context, contractID string, limit int, who auth.Actor) ([]domain.Event, error) {
	if _, err := e.GetContract(ctx, contractID, who); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, limit, repo.EventFilter{EntityKind: "contract", EntityID: contractID})
}
