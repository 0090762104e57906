package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

func createTestTask(t *testing.T, db *DB, userID, title string) *model.Task {
	t.Helper()
	task := &model.Task{UserID: userID, Title: title, Description: "desc"}
	require.NoError(t, db.CreateTask(context.Background(), task))
	return task
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestCreateTask_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")

	task := createTestTask(t, db, owner.ID, "buy milk")
	require.NotEmpty(t, task.ID)

	got, err := db.GetTask(context.Background(), owner.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got.Title)
	assert.Equal(t, "desc", got.Description)
	assert.Equal(t, owner.ID, got.UserID)
	assert.False(t, got.Completed)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateTask_UnknownOwnerViolatesForeignKey(t *testing.T) {
	db := newTestDB(t)

	err := db.CreateTask(context.Background(), &model.Task{UserID: "ghost", Title: "x"})
	assert.Error(t, err)
}

func TestGetTask_OtherOwnerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	ann := createTestUser(t, db, "Ann", "ann@x.com")
	bob := createTestUser(t, db, "Bob", "bob@x.com")
	task := createTestTask(t, db, ann.ID, "private")

	_, err := db.GetTask(context.Background(), bob.ID, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListTasks_ScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	ann := createTestUser(t, db, "Ann", "ann@x.com")
	bob := createTestUser(t, db, "Bob", "bob@x.com")
	createTestTask(t, db, ann.ID, "ann 1")
	createTestTask(t, db, ann.ID, "ann 2")
	createTestTask(t, db, bob.ID, "bob 1")

	tasks, total, err := db.ListTasks(context.Background(), ann.ID, repository.TaskListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, ann.ID, task.UserID)
	}
}

func TestListTasks_PaginationAndTotal(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")
	for i := 0; i < 5; i++ {
		createTestTask(t, db, owner.ID, fmt.Sprintf("task %d", i))
	}

	page1, total, err := db.ListTasks(context.Background(), owner.ID, repository.TaskListOptions{
		Limit: 2, Offset: 0, SortBy: repository.SortByTitle, Ascending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "task 0", page1[0].Title)
	assert.Equal(t, "task 1", page1[1].Title)

	page3, _, err := db.ListTasks(context.Background(), owner.ID, repository.TaskListOptions{
		Limit: 2, Offset: 4, SortBy: repository.SortByTitle, Ascending: true,
	})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "task 4", page3[0].Title)
}

func TestListTasks_SearchIsCaseInsensitiveAndLiteral(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")
	createTestTask(t, db, owner.ID, "Buy MILK")
	createTestTask(t, db, owner.ID, "walk dog")
	createTestTask(t, db, owner.ID, "100% done")

	tasks, total, err := db.ListTasks(context.Background(), owner.ID, repository.TaskListOptions{
		Limit: 10, Search: "milk",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy MILK", tasks[0].Title)

	// "%" must not act as a wildcard.
	tasks, total, err = db.ListTasks(context.Background(), owner.ID, repository.TaskListOptions{
		Limit: 10, Search: "0%",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tasks, 1)
	assert.Equal(t, "100% done", tasks[0].Title)
}

func TestListTasks_CompletedFilter(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")
	done := createTestTask(t, db, owner.ID, "done")
	createTestTask(t, db, owner.ID, "open")
	_, err := db.ToggleTask(context.Background(), owner.ID, done.ID)
	require.NoError(t, err)

	tasks, total, err := db.ListTasks(context.Background(), owner.ID, repository.TaskListOptions{
		Limit: 10, Completed: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tasks, 1)
	assert.Equal(t, done.ID, tasks[0].ID)

	_, total, err = db.ListTasks(context.Background(), owner.ID, repository.TaskListOptions{
		Limit: 10, Completed: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestUpdateTask_PartialFields(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")
	task := createTestTask(t, db, owner.ID, "old title")

	updated, err := db.UpdateTask(context.Background(), owner.ID, task.ID, repository.TaskFields{
		Title: strPtr("new title"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "desc", updated.Description, "untouched field must keep its value")
	assert.False(t, updated.Completed)
	assert.False(t, updated.UpdatedAt.Before(task.UpdatedAt))

	updated, err = db.UpdateTask(context.Background(), owner.ID, task.ID, repository.TaskFields{
		Description: strPtr(""),
		Completed:   boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "", updated.Description)
	assert.True(t, updated.Completed)
}

func TestUpdateTask_OtherOwnerIsNotFoundAndUnchanged(t *testing.T) {
	db := newTestDB(t)
	ann := createTestUser(t, db, "Ann", "ann@x.com")
	bob := createTestUser(t, db, "Bob", "bob@x.com")
	task := createTestTask(t, db, ann.ID, "mine")

	_, err := db.UpdateTask(context.Background(), bob.ID, task.ID, repository.TaskFields{
		Title: strPtr("hijacked"),
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := db.GetTask(context.Background(), ann.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
}

func TestToggleTask(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")
	task := createTestTask(t, db, owner.ID, "flip me")

	toggled, err := db.ToggleTask(context.Background(), owner.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	toggled, err = db.ToggleTask(context.Background(), owner.ID, task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Completed)
}

func TestToggleTask_NotFound(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "Ann", "ann@x.com")

	_, err := db.ToggleTask(context.Background(), owner.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteTask(t *testing.T) {
	db := newTestDB(t)
	ann := createTestUser(t, db, "Ann", "ann@x.com")
	bob := createTestUser(t, db, "Bob", "bob@x.com")
	task := createTestTask(t, db, ann.ID, "delete me")

	err := db.DeleteTask(context.Background(), bob.ID, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "non-owner delete must look like not found")

	require.NoError(t, db.DeleteTask(context.Background(), ann.ID, task.ID))

	_, err = db.GetTask(context.Background(), ann.ID, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = db.DeleteTask(context.Background(), ann.ID, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
