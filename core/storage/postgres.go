package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/menubot/core/engine"
)

// Postgres implements engine.Store over sqlx. One instance is shared by
// the handlers and the periodic jobs of a process; sqlx pools underneath.
type Postgres struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Roles returns all operator-defined roles.
func (s *Postgres) Roles(ctx context.Context) ([]engine.Role, error) {
	var roles []engine.Role
	err := s.db.SelectContext(ctx, &roles,
		`SELECT id, name, menu_id FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	return roles, nil
}

// Menus loads the full menu tree with buttons attached in display order.
func (s *Postgres) Menus(ctx context.Context) ([]engine.MenuNode, error) {
	var nodes []engine.MenuNode
	err := s.db.SelectContext(ctx, &nodes,
		`SELECT id, parent_id, name, ord FROM menu_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select menu nodes: %w", err)
	}

	var buttons []engine.Button
	err = s.db.SelectContext(ctx, &buttons,
		`SELECT id, menu_id, type, name, ord,
		        COALESCE(child_menu_id, 0) AS child_menu_id,
		        answer, file,
		        on_label, off_label, on_answer, off_answer,
		        reminder_text, received_answer
		   FROM buttons
		  ORDER BY menu_id, ord, id`)
	if err != nil {
		return nil, fmt.Errorf("select buttons: %w", err)
	}

	byMenu := make(map[int64][]engine.Button, len(nodes))
	for _, b := range buttons {
		byMenu[b.MenuID] = append(byMenu[b.MenuID], b)
	}
	for i := range nodes {
		nodes[i].Buttons = byMenu[nodes[i].ID]
	}
	return nodes, nil
}

// Users returns all users of one platform, blocked included.
func (s *Postgres) Users(ctx context.Context, platform engine.Platform) ([]engine.User, error) {
	var users []engine.User
	err := s.db.SelectContext(ctx, &users,
		`SELECT id, platform, platform_id, role_id, is_subscribed, subscribed_at, is_blocked
		   FROM users WHERE platform = $1 ORDER BY id`, platform)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return users, nil
}

// UserByPlatformID resolves one user or engine.ErrNotFound.
func (s *Postgres) UserByPlatformID(ctx context.Context, platform engine.Platform, platformID int64) (engine.User, error) {
	var u engine.User
	err := s.db.GetContext(ctx, &u,
		`SELECT id, platform, platform_id, role_id, is_subscribed, subscribed_at, is_blocked
		   FROM users WHERE platform = $1 AND platform_id = $2`, platform, platformID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.User{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// CreateUser registers a new user with the given role.
func (s *Postgres) CreateUser(ctx context.Context, platform engine.Platform, platformID, roleID int64) (engine.User, error) {
	var u engine.User
	err := s.db.GetContext(ctx, &u,
		`INSERT INTO users (platform, platform_id, role_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, platform, platform_id, role_id, is_subscribed, subscribed_at, is_blocked`,
		platform, platformID, roleID)
	if err != nil {
		return engine.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ChangeRole moves an existing user to another role.
func (s *Postgres) ChangeRole(ctx context.Context, userID, roleID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET role_id = $2 WHERE id = $1`, userID, roleID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return requireRow(res)
}

// BlockUser marks the user blocked and deletes their questions in one
// transaction, so no dangling question ever references a blocked user.
func (s *Postgres) BlockUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin block tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET is_blocked = TRUE, is_subscribed = FALSE, subscribed_at = NULL
		  WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM questions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit block tx: %w", err)
	}
	return nil
}

// Subscribers returns platform identifiers of subscribed users per role.
func (s *Postgres) Subscribers(ctx context.Context, platform engine.Platform) (map[int64][]int64, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT role_id, platform_id FROM users
		  WHERE platform = $1 AND is_subscribed AND NOT is_blocked
		  ORDER BY role_id, platform_id`, platform)
	if err != nil {
		return nil, fmt.Errorf("select subscribers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var roleID, platformID int64
		if err := rows.Scan(&roleID, &platformID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out[roleID] = append(out[roleID], platformID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return out, nil
}

// SetSubscribed persists the subscription flag and timestamp.
func (s *Postgres) SetSubscribed(ctx context.Context, userID int64, subscribed bool, at time.Time) error {
	var res sql.Result
	var err error
	if subscribed {
		res, err = s.db.ExecContext(ctx,
			`UPDATE users SET is_subscribed = TRUE, subscribed_at = $2 WHERE id = $1`,
			userID, at)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE users SET is_subscribed = FALSE, subscribed_at = NULL WHERE id = $1`,
			userID)
	}
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return requireRow(res)
}

// AdminIDs returns platform identifiers of operators for one platform.
func (s *Postgres) AdminIDs(ctx context.Context, platform engine.Platform) ([]int64, error) {
	column := "telegram_id"
	if platform == engine.PlatformVK {
		column = "vk_id"
	}
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		fmt.Sprintf(`SELECT %s FROM admin_users WHERE %s IS NOT NULL ORDER BY %s`, column, column, column))
	if err != nil {
		return nil, fmt.Errorf("select admins: %w", err)
	}
	return ids, nil
}

// AddQuestion stores a new open question for the user.
func (s *Postgres) AddQuestion(ctx context.Context, userID int64, text string) (engine.Question, error) {
	var q engine.Question
	err := s.db.GetContext(ctx, &q,
		`WITH ins AS (
		     INSERT INTO questions (user_id, question)
		     VALUES ($1, $2)
		     RETURNING id, user_id, question, answer, created_at, answered_at, delivered_at
		 )
		 SELECT ins.id, ins.user_id, u.platform_id, ins.question, ins.answer,
		        ins.created_at, ins.answered_at, ins.delivered_at
		   FROM ins JOIN users u ON u.id = ins.user_id`,
		userID, text)
	if err != nil {
		return engine.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

// OpenQuestion returns the oldest unanswered question or engine.ErrNotFound.
func (s *Postgres) OpenQuestion(ctx context.Context) (engine.Question, error) {
	var q engine.Question
	err := s.db.GetContext(ctx, &q,
		`SELECT q.id, q.user_id, u.platform_id, q.question, q.answer,
		        q.created_at, q.answered_at, q.delivered_at
		   FROM questions q JOIN users u ON u.id = q.user_id
		  WHERE q.answered_at IS NULL
		  ORDER BY q.created_at, q.id
		  LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Question{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.Question{}, fmt.Errorf("select open question: %w", err)
	}
	return q, nil
}

// AnswerQuestion stamps the answer text and time. Re-answering overwrites.
func (s *Postgres) AnswerQuestion(ctx context.Context, questionID int64, answer string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET answer = $2, answered_at = $3 WHERE id = $1`,
		questionID, answer, at)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	return requireRow(res)
}

// AnsweredUndelivered returns answered, undelivered questions of one
// platform's unblocked users, oldest first.
func (s *Postgres) AnsweredUndelivered(ctx context.Context, platform engine.Platform) ([]engine.Question, error) {
	var out []engine.Question
	err := s.db.SelectContext(ctx, &out,
		`SELECT q.id, q.user_id, u.platform_id, q.question, q.answer,
		        q.created_at, q.answered_at, q.delivered_at
		   FROM questions q JOIN users u ON u.id = q.user_id
		  WHERE u.platform = $1 AND NOT u.is_blocked
		    AND q.answered_at IS NOT NULL AND q.delivered_at IS NULL
		  ORDER BY q.created_at, q.id`, platform)
	if err != nil {
		return nil, fmt.Errorf("select answered questions: %w", err)
	}
	return out, nil
}

// MarkDelivered stamps delivery time for exactly the given questions.
func (s *Postgres) MarkDelivered(ctx context.Context, questionIDs []int64, at time.Time) error {
	if len(questionIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE questions SET delivered_at = $2 WHERE id = ANY($1)`,
		pq.Array(questionIDs), at)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// PendingTickets returns menu-update tickets not yet acknowledged by the
// platform, oldest first.
func (s *Postgres) PendingTickets(ctx context.Context, platform engine.Platform) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, fmt.Sprintf(
		`SELECT id FROM menu_update_tickets WHERE %s IS NULL ORDER BY id`,
		ackColumn(platform)))
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	return ids, nil
}

// AcknowledgeTickets stamps the platform's ack column for the given tickets.
func (s *Postgres) AcknowledgeTickets(ctx context.Context, platform engine.Platform, ticketIDs []int64, at time.Time) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE menu_update_tickets SET %s = $2 WHERE id = ANY($1)`,
		ackColumn(platform)),
		pq.Array(ticketIDs), at)
	if err != nil {
		return fmt.Errorf("acknowledge tickets: %w", err)
	}
	return nil
}

func ackColumn(platform engine.Platform) string {
	if platform == engine.PlatformVK {
		return "vk_ack_at"
	}
	return "telegram_ack_at"
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}
