package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tasksms/internal/domain"
	"tasksms/internal/engine"
)

var taskErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

type taskPath struct {
	GUID string `path:"guid" doc:"Task GUID"`
}

type getTaskInput struct {
	GUID       string `path:"guid" doc:"Task GUID"`
	Projection string `query:"projection" doc:"SUMMARY, DETAILS or DEEP (default DETAILS)"`
}

type patchTaskInput struct {
	GUID string           `path:"guid" doc:"Task GUID"`
	Body []PatchOperation `json:"body"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/task",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskResource `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			Name:    input.Body.Name,
			Tags:    input.Body.Tags,
			Groups:  input.Body.Groups,
			ActorID: actorID,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		res, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskResource `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/task",
		Summary:     "List tasks (summary projection)",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TaskResource `json:"body"`
	}, error) {
		list, err := e.ListTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskResource `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/task/{guid}",
		Summary:     "Get task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *getTaskInput) (*struct {
		Body domain.TaskResource `json:"body"`
	}, error) {
		projection, err := domain.ParseProjection(input.Projection)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "projection"})
		}
		res, err := e.GetTask(ctx, input.GUID, projection)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskResource `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-task",
		Method:      http.MethodPatch,
		Path:        "/task/{guid}",
		Summary:     "Update task with a JSON Patch document",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *patchTaskInput) (*struct {
		Body domain.TaskResource `json:"body"`
	}, error) {
		raw := bodyBytes(ctx)
		if len(raw) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			GUID:    input.GUID,
			Patch:   raw,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskResource `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/task/{guid}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.GUID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/task/{guid}/history",
		Summary:     "Task audit trail",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body []domain.History `json:"body"`
	}, error) {
		rows, err := e.ListHistory(ctx, input.GUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.History `json:"body"`
		}{Body: rows}, nil
	})
}
