// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take plain Go values and return domain errors from
// internal/apperror. They never see an *http.Request and never choose a
// status code; the handler translates errors into HTTP.
//
// DEPENDENCY INJECTION:
// TaskService takes a repository.TaskRepository (interface), NOT a
// *sqlite.DB. The service doesn't import the sqlite package at all.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// Validation and pagination limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	DefaultPage          = 1
	DefaultListLimit     = 10
	MaxListLimit         = 100
	MaxPage              = 1_000_000
)

// Sort orders accepted by List.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListTasksInput holds the query parameters of a task listing. Zero values
// mean "use the default".
type ListTasksInput struct {
	Page      int    `json:"page" validate:"gte=0,lte=1000000"`
	Limit     int    `json:"limit" validate:"gte=0,lte=100"`
	Search    string `json:"search" validate:"max=200"`
	Completed *bool  `json:"completed"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=createdAt updatedAt title"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// CreateTaskInput is the body of a create request.
type CreateTaskInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateTaskInput is the body of an update request. Nil fields are left
// unchanged; at least one must be set.
type UpdateTaskInput struct {
	Title       *string `json:"title" validate:"omitnil,required,max=200"`
	Description *string `json:"description" validate:"omitnil,max=2000"`
	Completed   *bool   `json:"completed"`
}

// TaskService handles business logic for tasks. Every method takes the
// owner's userID, which comes from the verified access token, never from the
// request body.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
	}
}

// List returns one page of the user's tasks.
//
// PAGINATION:
// page and limit are 1-based; page 3 with limit 10 → offset 20. An
// out-of-range page returns an empty Tasks slice with the real totals, so
// the client can still render its pager.
func (s *TaskService) List(ctx context.Context, userID string, in ListTasksInput) (*model.TaskPage, error) {
	in.Search = strings.TrimSpace(in.Search)
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	page := in.Page
	if page == 0 {
		page = DefaultPage
	}
	limit := in.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	sortBy := in.SortBy
	if sortBy == "" {
		sortBy = repository.SortByCreatedAt
	}

	tasks, total, err := s.repo.ListTasks(ctx, userID, repository.TaskListOptions{
		Limit:     limit,
		Offset:    (page - 1) * limit,
		Search:    in.Search,
		Completed: in.Completed,
		SortBy:    sortBy,
		Ascending: in.SortOrder == SortAsc,
	})
	if err != nil {
		s.logger.Error("failed to list tasks",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	if tasks == nil {
		tasks = []model.Task{} // encode as [], not null
	}

	return &model.TaskPage{
		Tasks:      tasks,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
		TotalTasks: total,
	}, nil
}

// Get returns one task. A task owned by someone else is NotFound, exactly
// like a task that doesn't exist.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*model.Task, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, apperror.ValidationFailed("id", "task ID is required")
	}
	return s.repo.GetTask(ctx, userID, id)
}

// Create validates and saves a new task for userID.
func (s *TaskService) Create(ctx context.Context, userID string, in CreateTaskInput) (*model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	task := &model.Task{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.logger.Error("failed to create task",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.logger.Info("task created",
		slog.String("id", task.ID),
		slog.String("userID", userID),
	)
	return task, nil
}

// Update applies the set fields of in to the task.
//
// The repository does this in ONE statement scoped by owner, so there is no
// window between "is this your task?" and the write. A non-owner gets
// NotFound and nothing is written.
func (s *TaskService) Update(ctx context.Context, userID, id string, in UpdateTaskInput) (*model.Task, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, apperror.ValidationFailed("id", "task ID is required")
	}
	if in.Title == nil && in.Description == nil && in.Completed == nil {
		return nil, apperror.ValidationFailed("body", "at least one of title, description or completed is required")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		in.Description = &description
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	task, err := s.repo.UpdateTask(ctx, userID, id, repository.TaskFields{
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
	})
	if err != nil {
		return nil, s.wrapWrite("updating", userID, id, err)
	}

	s.logger.Info("task updated", slog.String("id", id), slog.String("userID", userID))
	return task, nil
}

// Toggle flips the task's completed flag.
func (s *TaskService) Toggle(ctx context.Context, userID, id string) (*model.Task, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, apperror.ValidationFailed("id", "task ID is required")
	}

	task, err := s.repo.ToggleTask(ctx, userID, id)
	if err != nil {
		return nil, s.wrapWrite("toggling", userID, id, err)
	}
	return task, nil
}

// Delete removes the task. Like Update, it is a single owner-scoped statement.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if id = strings.TrimSpace(id); id == "" {
		return apperror.ValidationFailed("id", "task ID is required")
	}

	if err := s.repo.DeleteTask(ctx, userID, id); err != nil {
		return s.wrapWrite("deleting", userID, id, err)
	}

	s.logger.Info("task deleted", slog.String("id", id), slog.String("userID", userID))
	return nil
}

// wrapWrite passes NotFound through untouched and logs everything else.
// NotFound is a normal outcome (wrong id, or someone else's task), not a
// failure worth an error log.
func (s *TaskService) wrapWrite(verb, userID, id string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.logger.Error("task write failed",
		slog.String("op", verb),
		slog.String("id", id),
		slog.String("userID", userID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s task %s: %w", verb, id, err)
}
