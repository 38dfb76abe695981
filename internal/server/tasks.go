package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/engine/auth"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-contract-tasks",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/tasks",
		Summary:     "List the tasks of a contract",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasks(ctx, input.ID, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Tasks: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-contract-task",
		Method:        http.MethodPost,
		Path:          "/contracts/{id}/tasks",
		Summary:       "Add a task to a contract",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ContractID:  input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Type:        input.Body.Type,
			Status:      input.Body.Status,
			Assignee:    input.Body.Assignee,
			DueDate:     input.Body.DueDate,
			Subtasks:    input.Body.Subtasks,
			Actor:       caller,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contract-task",
		Method:      http.MethodPatch,
		Path:        "/contracts/{id}/tasks/{task_id}",
		Summary:     "Update a task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string            `path:"id"`
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, input.ID, input.TaskID, input.Body.patch(), caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-contract-task",
		Method:        http.MethodDelete,
		Path:          "/contracts/{id}/tasks/{task_id}",
		Summary:       "Delete a task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, input.TaskID, caller); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contract-comments",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/comments",
		Summary:     "List comments, oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body commentList `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		comments, err := e.ListComments(ctx, input.ID, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body commentList `json:"body"`
		}{Body: commentList{Comments: nonNilSlice(comments)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-contract-comment",
		Method:        http.MethodPost,
		Path:          "/contracts/{id}/comments",
		Summary:       "Comment on a contract",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, input.ID, input.Body.Content, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contract-activity",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}/activity",
		Summary:     "Recent changes to a contract, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ContractActivity(ctx, input.ID, input.Limit, caller)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRoles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/roles",
		Summary:     "List stored role assignments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body roleList `json:"body"`
	}, error) {
		if _, authErr := callerFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		roles, err := e.RoleAssignments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body roleList `json:"body"`
		}{Body: roleList{Roles: nonNilSlice(roles)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-role",
		Method:      http.MethodPut,
		Path:        "/roles/{actor_id}",
		Summary:     "Assign a role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string            `path:"actor_id"`
		Body    AssignRoleRequest `json:"body"`
	}) (*struct {
		Body auth.Assignment `json:"body"`
	}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AssignRole(ctx, input.ActorID, input.Body.Role, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body auth.Assignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-role",
		Method:        http.MethodDelete,
		Path:          "/roles/{actor_id}",
		Summary:       "Revoke a stored role",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.ActorID, caller); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
