package core

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

const maxTitleLength = 255

// TodoService implements todo business rules. Every operation is scoped to
// the owning user: a todo belonging to someone else is never read, updated,
// or deleted on another user's behalf.
type TodoService struct {
	todos TodoRepository
}

func NewTodoService(todos TodoRepository) *TodoService {
	return &TodoService{todos: todos}
}

func (s *TodoService) Create(ctx context.Context, userID int64, in TodoCreateInput) (*TodoRecord, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, validationError("title must not be empty")
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLength {
		return nil, validationError("title must be at most 255 characters")
	}
	if in.Priority == "" {
		in.Priority = defaultPriority
	}
	if !validPriority(in.Priority) {
		return nil, validationError("priority must be HIGH, MEDIUM, or LOW")
	}
	return s.todos.Create(ctx, userID, in)
}

// List returns one page of the user's todos. status is one of all/completed/
// incomplete; a search term filters by title and overrides status.
func (s *TodoService) List(ctx context.Context, userID int64, status, search string, page, perPage int) ([]TodoRecord, int, error) {
	switch status {
	case "", StatusAll, StatusCompleted, StatusIncomplete:
	default:
		return nil, 0, validationError("status must be all, completed, or incomplete")
	}
	return s.todos.ListByUser(ctx, userID, status, search, page, perPage)
}

// Get returns the todo only if it belongs to userID.
func (s *TodoService) Get(ctx context.Context, id, userID int64) (*TodoRecord, error) {
	return s.getOwned(ctx, id, userID)
}

// Update applies a partial update; nil fields keep their stored values.
func (s *TodoService) Update(ctx context.Context, id, userID int64, in TodoUpdateInput) (*TodoRecord, error) {
	t, err := s.getOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, validationError("title must not be empty")
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return nil, validationError("title must be at most 255 characters")
		}
		t.Title = title
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	if in.Priority != nil {
		if !validPriority(*in.Priority) {
			return nil, validationError("priority must be HIGH, MEDIUM, or LOW")
		}
		t.Priority = *in.Priority
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate
	}

	return s.todos.Update(ctx, t)
}

func (s *TodoService) Delete(ctx context.Context, id, userID int64) error {
	if _, err := s.getOwned(ctx, id, userID); err != nil {
		return err
	}
	return s.todos.Delete(ctx, id)
}

// Toggle flips the completed flag.
func (s *TodoService) Toggle(ctx context.Context, id, userID int64) (*TodoRecord, error) {
	t, err := s.getOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	t.Completed = !t.Completed
	return s.todos.Update(ctx, t)
}

// Overdue returns the user's incomplete todos with a due date before today.
// The comparison is at date precision: a todo due today is not yet overdue.
func (s *TodoService) Overdue(ctx context.Context, userID int64, now time.Time) ([]TodoRecord, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.todos.OverdueByUser(ctx, userID, today)
}

// Stats returns total/completed/incomplete counts for the user.
func (s *TodoService) Stats(ctx context.Context, userID int64) (total, completed, incomplete int, err error) {
	total, completed, err = s.todos.CountsByUser(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	return total, completed, total - completed, nil
}

func (s *TodoService) getOwned(ctx context.Context, id, userID int64) (*TodoRecord, error) {
	t, err := s.todos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, ErrTodoForbidden
	}
	return t, nil
}

func validPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
