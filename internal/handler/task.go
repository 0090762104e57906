// Package handler contains the HTTP request handlers of the task manager API.
//
// Handlers parse requests and write responses. Business rules live in
// internal/service; handlers only translate between HTTP and service calls.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/service"
)

// TaskHandler serves the task CRUD endpoints. Every route sits behind
// auth.RequireAuth, so the owner always comes from the verified token.
type TaskHandler struct {
	svc    *service.TaskService
	logger *slog.Logger
}

func NewTaskHandler(svc *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleList returns one page of the caller's tasks.
//
// HTTP: GET /tasks?page=1&limit=10&search=milk&completed=false&sortBy=title&sortOrder=asc
//
// Every parameter is optional. A value that doesn't parse (limit=abc,
// completed=maybe) is a 400, not silently ignored.
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	in, err := parseListQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.svc.List(r.Context(), userID, in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func parseListQuery(r *http.Request) (service.ListTasksInput, error) {
	q := r.URL.Query()
	in := service.ListTasksInput{
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}

	var err error
	if in.Page, err = queryInt(q.Get("page"), "page"); err != nil {
		return in, err
	}
	if in.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return in, err
	}
	if raw := q.Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return in, apperror.ValidationFailed("completed", "completed must be true or false")
		}
		in.Completed = &completed
	}
	return in, nil
}

// queryInt parses an optional integer parameter; "" means 0 (the default).
func queryInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(field, field+" must be an integer")
	}
	return n, nil
}

// HandleGet returns a single task.
//
// HTTP: GET /tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	task, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleCreate creates a task owned by the caller.
//
// HTTP: POST /tasks
// REQUEST BODY: {"title": "Buy milk", "description": "two litres"}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var in service.CreateTaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

// HandleUpdate changes the fields present in the body.
//
// HTTP: PATCH /tasks/{id}
// REQUEST BODY: {"completed": true}   (any subset of title, description, completed)
//
// A field that is absent stays as it is. Pointers in UpdateTaskInput tell
// "absent" apart from the zero value, so {"completed": false} really sets false.
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var in service.UpdateTaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleToggle flips the completed flag.
//
// HTTP: PATCH /tasks/{id}/toggle
func (h *TaskHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	task, err := h.svc.Toggle(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleDelete removes a task.
//
// HTTP: DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "task deleted"})
}
