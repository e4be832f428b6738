package backend

import (
	"context"
	"net/http"
	"strconv"

	"github.com/memeindex/memeindex/internal/metrics"
)

// Tasks lists the checklist of the launch identity userID.
func (c *Client) Tasks(ctx context.Context, userID int64) ([]Task, error) {
	resp, err := c.do(ctx, metrics.EndpointTasks, http.MethodGet, "/api/tasks/"+strconv.FormatInt(userID, 10), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(resp)
	}

	var out tasksResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []Task{}
	}
	return out.Tasks, nil
}

// CompleteTask marks taskID done for userID.
func (c *Client) CompleteTask(ctx context.Context, req CompleteTaskRequest) (*TaskResult, error) {
	return c.taskCall(ctx, "/api/task/complete", req)
}

// VerifyTask asks the backend to check a join task of taskType for userID.
func (c *Client) VerifyTask(ctx context.Context, req VerifyTaskRequest) (*TaskResult, error) {
	return c.taskCall(ctx, "/api/task/verify", req)
}

func (c *Client) taskCall(ctx context.Context, path string, body any) (*TaskResult, error) {
	resp, err := c.do(ctx, metrics.EndpointTasks, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(resp)
	}

	var out TaskResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
