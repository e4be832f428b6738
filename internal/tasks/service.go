// Package tasks implements the task checklist: loading the list for the
// launch identity, completing and verifying tasks, and acting on a click.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/metrics"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// DefaultVerifyDelay is the wait between opening a join link and verifying it.
const DefaultVerifyDelay = 2 * time.Second

// Toast texts.
const (
	MsgOpenInTelegram   = "Please open this app in Telegram"
	MsgLoadFailed       = "Failed to load tasks"
	MsgCompleteFailed   = "Failed to complete task"
	MsgVerifyFailed     = "Failed to verify task completion"
	MsgAlreadyCompleted = "Task already completed"
	MsgUseInviteButton  = "Use the Invite Friends button below"
	MsgUnknownType      = "Unknown task type"
)

// Backend is the subset of the backend client the checklist needs.
type Backend interface {
	Tasks(ctx context.Context, userID int64) ([]backend.Task, error)
	CompleteTask(ctx context.Context, req backend.CompleteTaskRequest) (*backend.TaskResult, error)
	VerifyTask(ctx context.Context, req backend.VerifyTaskRequest) (*backend.TaskResult, error)
}

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures a Service.
type Options struct {
	Messenger   host.Messenger
	Notifier    host.Notifier
	VerifyDelay time.Duration
	Logger      Logger
	Metrics     *metrics.Metrics
}

// Service keeps the task list of one launch identity.
type Service struct {
	backend     Backend
	identity    host.Identity
	messenger   host.Messenger
	notifier    host.Notifier
	verifyDelay time.Duration
	logger      Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	tasks   []backend.Task
	loading bool
	lastErr error
}

// NewService creates a checklist for identity. The list starts out loading.
func NewService(b Backend, identity host.Identity, opts Options) *Service {
	s := &Service{
		backend:     b,
		identity:    identity,
		messenger:   opts.Messenger,
		notifier:    opts.Notifier,
		verifyDelay: opts.VerifyDelay,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		loading:     true,
	}
	if s.verifyDelay <= 0 {
		s.verifyDelay = DefaultVerifyDelay
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}
	return s
}

// Tasks returns the last fetched list.
func (s *Service) Tasks() []backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Loading reports whether no fetch has finished yet or one is running.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the error of the last fetch.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Find returns the task with id from the last fetched list.
func (s *Service) Find(id string) (backend.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return backend.Task{}, false
}

// Fetch reloads the task list.
func (s *Service) Fetch(ctx context.Context) ([]backend.Task, error) {
	if err := s.requireIdentity(); err != nil {
		s.finishLoading(nil, err, false)
		return nil, err
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	list, err := s.backend.Tasks(ctx, s.identity.ID)
	if err != nil {
		s.logger.Error("fetch tasks for %s: %v", s.identity.Key(), err)
		s.toastError(MsgLoadFailed)
		s.finishLoading(nil, err, false)
		return nil, err
	}

	s.finishLoading(list, nil, true)
	return s.Tasks(), nil
}

// Complete marks taskID done. A credited task is toasted and the list refetched.
func (s *Service) Complete(ctx context.Context, taskID string) (*backend.TaskResult, error) {
	if err := s.requireIdentity(); err != nil {
		return nil, err
	}

	res, err := s.backend.CompleteTask(ctx, backend.CompleteTaskRequest{UserID: s.identity.ID, TaskID: taskID})
	if err != nil {
		s.logger.Error("complete task %s: %v", taskID, err)
		s.toastError(MsgCompleteFailed)
		return nil, err
	}
	s.credited(ctx, res)
	return res, nil
}

// Verify asks the backend to check a join task of taskType.
func (s *Service) Verify(ctx context.Context, taskType string) (*backend.TaskResult, error) {
	if err := s.requireIdentity(); err != nil {
		return nil, err
	}

	res, err := s.backend.VerifyTask(ctx, backend.VerifyTaskRequest{UserID: s.identity.ID, TaskType: taskType})
	if err != nil {
		s.logger.Error("verify task %s: %v", taskType, err)
		s.toastError(MsgVerifyFailed)
		return nil, err
	}
	s.credited(ctx, res)
	return res, nil
}

// Handle acts on a click on task.
func (s *Service) Handle(ctx context.Context, task backend.Task) error {
	if task.Completed {
		s.toastSuccess(MsgAlreadyCompleted)
		return nil
	}

	switch task.Type {
	case backend.TaskInviteFriends:
		s.toastInfo(MsgUseInviteButton)
		return nil

	case backend.TaskJoinBot, backend.TaskJoinGroup:
		if task.ActionURL == "" {
			return nil
		}
		if err := s.openTelegramLink(ctx, task.ActionURL); err != nil {
			return err
		}
		timer := time.NewTimer(s.verifyDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		_, err := s.Verify(ctx, task.Type)
		return err

	case backend.TaskCustom:
		if task.ActionURL == "" {
			return nil
		}
		if err := s.openLink(ctx, task.ActionURL); err != nil {
			return err
		}
		_, err := s.Complete(ctx, task.ID)
		return err

	default:
		s.toastError(MsgUnknownType)
		err := apperr.WithDetails(apperr.ErrUnknownTaskType, map[string]string{"type": task.Type})
		if suggestion := SuggestType(task.Type); suggestion != "" {
			err = apperr.WithSuggestion(err, fmt.Sprintf("Did you mean %q?", suggestion))
		}
		return err
	}
}

func (s *Service) credited(ctx context.Context, res *backend.TaskResult) {
	if !res.Completed() {
		s.logger.Debug("task not credited: %q", res.Message)
		return
	}
	s.metrics.RecordTaskCompleted()
	s.toastSuccess(fmt.Sprintf("Task completed! Earned %d votes", res.RewardVotes))
	if _, err := s.Fetch(ctx); err != nil {
		s.logger.Error("refresh tasks: %v", err)
	}
}

func (s *Service) requireIdentity() error {
	if s.identity.IsZero() {
		s.toastError(MsgOpenInTelegram)
		return apperr.ErrMissingIdentity
	}
	return nil
}

func (s *Service) finishLoading(list []backend.Task, err error, replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.lastErr = err
	if replace {
		s.tasks = list
	}
}

func (s *Service) openTelegramLink(ctx context.Context, link string) error {
	if s.messenger == nil {
		return nil
	}
	return s.messenger.OpenTelegramLink(ctx, link)
}

func (s *Service) openLink(ctx context.Context, link string) error {
	if s.messenger == nil {
		return nil
	}
	return s.messenger.OpenLink(ctx, link)
}

func (s *Service) toastSuccess(msg string) {
	if s.notifier != nil {
		s.notifier.Success(msg)
	}
}

func (s *Service) toastError(msg string) {
	if s.notifier != nil {
		s.notifier.Error(msg)
	}
}

func (s *Service) toastInfo(msg string) {
	if s.notifier != nil {
		s.notifier.Info(msg)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
