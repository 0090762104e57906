package model

import "time"

// Task is a single to-do item. UserID is the owner; every query the
// repository runs against tasks is filtered by it.
type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskPage is one page of a filtered task listing.
type TaskPage struct {
	Tasks      []Task `json:"tasks"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
	TotalTasks int    `json:"totalTasks"`
}
