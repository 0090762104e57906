package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

var _ repository.TaskRepository = (*DB)(nil)

const taskColumns = `id, user_id, title, description, completed, created_at, updated_at`

// sortColumns maps the API's sort keys to SQL columns. ORDER BY cannot take
// a placeholder, so only values from this map are ever interpolated.
var sortColumns = map[string]string{
	repository.SortByCreatedAt: "created_at",
	repository.SortByUpdatedAt: "updated_at",
	repository.SortByTitle:     "title COLLATE NOCASE",
}

// CreateTask inserts the task. task.UserID must already be set to the owner.
func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating task: %w", err)
	}
	return nil
}

// GetTask returns the task only if userID owns it. A task owned by someone
// else is reported as not found, so callers cannot probe for other users' ids.
func (db *DB) GetTask(ctx context.Context, userID, id string) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	return scanTaskRow(row, id)
}

// ListTasks returns one page of the owner's tasks plus the total number of
// tasks matching the filters (ignoring Limit/Offset).
func (db *DB) ListTasks(ctx context.Context, userID string, opts repository.TaskListOptions) ([]model.Task, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if opts.Search != "" {
		where = append(where, `title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(opts.Search)+"%")
	}
	if opts.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *opts.Completed)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE `+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting tasks: %w", err)
	}

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = sortColumns[repository.SortByCreatedAt]
	}
	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}

	// id breaks ties so pages are stable when timestamps collide.
	query := fmt.Sprintf(
		`SELECT %s FROM tasks WHERE %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		taskColumns, whereClause, column, direction, direction,
	)
	rows, err := db.conn.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, opts.Limit)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Title, &t.Description,
			&t.Completed, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating tasks: %w", err)
	}

	return tasks, total, nil
}

// UpdateTask applies the non-nil fields in a single statement scoped by
// owner. There is no "load, check owner, then write" window: if the WHERE
// clause matches nothing, nothing is written and NotFound comes back.
func (db *DB) UpdateTask(ctx context.Context, userID, id string, fields repository.TaskFields) (*model.Task, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE tasks
		 SET title       = COALESCE(?, title),
		     description = COALESCE(?, description),
		     completed   = COALESCE(?, completed),
		     updated_at  = ?
		 WHERE id = ? AND user_id = ?`,
		fields.Title,
		fields.Description,
		fields.Completed,
		time.Now().UTC(),
		id,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating task %s: %w", id, err)
	}
	if err := requireOneRow(result, id); err != nil {
		return nil, err
	}
	return db.GetTask(ctx, userID, id)
}

// ToggleTask flips the completed flag in place, with the same owner scoping
// as UpdateTask.
func (db *DB) ToggleTask(ctx context.Context, userID, id string) (*model.Task, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE tasks
		 SET completed = NOT completed, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		time.Now().UTC(),
		id,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: toggling task %s: %w", id, err)
	}
	if err := requireOneRow(result, id); err != nil {
		return nil, err
	}
	return db.GetTask(ctx, userID, id)
}

func (db *DB) DeleteTask(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}

	return requireOneRow(result, id)
}

// requireOneRow turns "zero rows affected" into NotFound. With the owner in
// every WHERE clause, that covers both missing tasks and other users' tasks.
func requireOneRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("task", id)
	}
	return nil
}

func scanTaskRow(row *sql.Row, id string) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description,
		&t.Completed, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: reading task %s: %w", id, err)
	}
	return &t, nil
}

// escapeLike makes %, _ and the escape character itself match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
