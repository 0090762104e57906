package repository

import (
	"context"

	"github.com/sakif/task-manager/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

// Sort columns accepted by TaskRepository.List.
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByTitle     = "title"
)

type TaskListOptions struct {
	Limit     int
	Offset    int
	Search    string // case-insensitive substring of the title
	Completed *bool  // nil means both
	SortBy    string
	Ascending bool
}

// TaskFields holds the columns an update may change. Nil fields keep their
// stored value.
type TaskFields struct {
	Title       *string
	Description *string
	Completed   *bool
}

// TaskRepository methods take the owner's userID alongside the task id and
// treat a task owned by someone else exactly like a missing one.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, userID, id string) (*model.Task, error)
	ListTasks(ctx context.Context, userID string, opts TaskListOptions) ([]model.Task, int, error)
	UpdateTask(ctx context.Context, userID, id string, fields TaskFields) (*model.Task, error)
	ToggleTask(ctx context.Context, userID, id string) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
}
