package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Todo priority levels, stored as text.
const (
	PriorityHigh    = "HIGH"
	PriorityMedium  = "MEDIUM"
	PriorityLow     = "LOW"
	defaultPriority = PriorityMedium
)

// Todo status filters for listing.
const (
	StatusAll        = "all"
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

// TodoRecord is a single to-do item owned by a user.
type TodoRecord struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TodoCreateInput holds the fields accepted when creating a todo.
type TodoCreateInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
}

// TodoUpdateInput holds optional fields for partial update; nil means keep.
type TodoUpdateInput struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *string
	DueDate     *time.Time
}

// TodoRepository defines persistence operations for todos.
type TodoRepository interface {
	FindByID(ctx context.Context, id int64) (*TodoRecord, error)
	ListByUser(ctx context.Context, userID int64, status, search string, page, perPage int) ([]TodoRecord, int, error)
	Create(ctx context.Context, userID int64, in TodoCreateInput) (*TodoRecord, error)
	Update(ctx context.Context, t *TodoRecord) (*TodoRecord, error)
	Delete(ctx context.Context, id int64) error
	OverdueByUser(ctx context.Context, userID int64, today time.Time) ([]TodoRecord, error)
	CountsByUser(ctx context.Context, userID int64) (total, completed int, err error)
}

// PgTodoRepository implements TodoRepository using pgxpool.
type PgTodoRepository struct {
	db *pgxpool.Pool
}

func NewPgTodoRepository(db *pgxpool.Pool) *PgTodoRepository {
	return &PgTodoRepository{db: db}
}

const todoColumns = `id, user_id, title, description, completed, priority, due_date, created_at, updated_at`

func scanTodo(row pgx.Row) (*TodoRecord, error) {
	var t TodoRecord
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.Priority, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTodoNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgTodoRepository) FindByID(ctx context.Context, id int64) (*TodoRecord, error) {
	q := `SELECT ` + todoColumns + ` FROM todos WHERE id=$1`
	return scanTodo(r.db.QueryRow(ctx, q, id))
}

// ListByUser returns one page of the user's todos plus the total count.
// A non-empty search term filters by title (case-insensitive substring) and
// takes precedence over the status filter.
func (r *PgTodoRepository) ListByUser(ctx context.Context, userID int64, status, search string, page, perPage int) ([]TodoRecord, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}

	where := `WHERE user_id=$1`
	args := []interface{}{userID}
	if s := strings.TrimSpace(search); s != "" {
		where += fmt.Sprintf(` AND title ILIKE $%d`, len(args)+1)
		args = append(args, "%"+s+"%")
	} else {
		switch status {
		case StatusCompleted:
			where += ` AND completed = TRUE`
		case StatusIncomplete:
			where += ` AND completed = FALSE`
		}
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM todos `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM todos %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		todoColumns, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]TodoRecord, 0, perPage)
	for rows.Next() {
		var t TodoRecord
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.Priority, &t.DueDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *PgTodoRepository) Create(ctx context.Context, userID int64, in TodoCreateInput) (*TodoRecord, error) {
	q := `INSERT INTO todos (user_id, title, description, completed, priority, due_date)
	      VALUES ($1,$2,$3,FALSE,$4,$5) RETURNING ` + todoColumns
	return scanTodo(r.db.QueryRow(ctx, q, userID, in.Title, in.Description, in.Priority, in.DueDate))
}

func (r *PgTodoRepository) Update(ctx context.Context, t *TodoRecord) (*TodoRecord, error) {
	q := `UPDATE todos SET title=$1, description=$2, completed=$3, priority=$4, due_date=$5, updated_at=now()
	      WHERE id=$6 RETURNING ` + todoColumns
	return scanTodo(r.db.QueryRow(ctx, q, t.Title, t.Description, t.Completed, t.Priority, t.DueDate, t.ID))
}

func (r *PgTodoRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM todos WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTodoNotFound
	}
	return nil
}

// OverdueByUser returns incomplete todos whose due date is strictly before
// today (a midnight timestamp supplied by the service).
func (r *PgTodoRepository) OverdueByUser(ctx context.Context, userID int64, today time.Time) ([]TodoRecord, error) {
	q := `SELECT ` + todoColumns + ` FROM todos
	      WHERE user_id=$1 AND completed = FALSE AND due_date IS NOT NULL AND due_date < $2
	      ORDER BY due_date`
	rows, err := r.db.Query(ctx, q, userID, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TodoRecord
	for rows.Next() {
		var t TodoRecord
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.Priority, &t.DueDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *PgTodoRepository) CountsByUser(ctx context.Context, userID int64) (int, int, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE completed) FROM todos WHERE user_id=$1`
	var total, completed int
	if err := r.db.QueryRow(ctx, q, userID).Scan(&total, &completed); err != nil {
		return 0, 0, err
	}
	return total, completed, nil
}
