package engine

import (
	"context"
	"time"
)

// Store is the persistence contract the engine consumes. Implementations
// live in core/storage; tests use an in-memory fake. All methods are
// expected to map "no rows" to ErrNotFound where a single row is asked for.
type Store interface {
	// Roles returns all operator-defined roles.
	Roles(ctx context.Context) ([]Role, error)
	// Menus returns the full menu tree with buttons in display order.
	Menus(ctx context.Context) ([]MenuNode, error)

	// Users returns all users of one platform, blocked included.
	Users(ctx context.Context, platform Platform) ([]User, error)
	// UserByPlatformID resolves one user or ErrNotFound.
	UserByPlatformID(ctx context.Context, platform Platform, platformID int64) (User, error)
	// CreateUser registers a new user with the given role.
	CreateUser(ctx context.Context, platform Platform, platformID, roleID int64) (User, error)
	// ChangeRole moves an existing user to another role.
	ChangeRole(ctx context.Context, userID, roleID int64) error
	// BlockUser marks the user blocked and deletes their questions.
	BlockUser(ctx context.Context, userID int64) error

	// Subscribers returns platform identifiers of subscribed users per role.
	Subscribers(ctx context.Context, platform Platform) (map[int64][]int64, error)
	// SetSubscribed persists the subscription flag and timestamp.
	SetSubscribed(ctx context.Context, userID int64, subscribed bool, at time.Time) error

	// AdminIDs returns platform identifiers of operators for one platform.
	AdminIDs(ctx context.Context, platform Platform) ([]int64, error)

	// AddQuestion stores a new open question for the user.
	AddQuestion(ctx context.Context, userID int64, text string) (Question, error)
	// OpenQuestion returns the oldest unanswered question or ErrNotFound.
	OpenQuestion(ctx context.Context) (Question, error)
	// AnswerQuestion stamps the answer text and time. Re-answering overwrites.
	AnswerQuestion(ctx context.Context, questionID int64, answer string, at time.Time) error
	// AnsweredUndelivered returns answered questions of one platform's
	// users whose answers have not been delivered yet, oldest first.
	AnsweredUndelivered(ctx context.Context, platform Platform) ([]Question, error)
	// MarkDelivered stamps delivery time for exactly the given questions.
	MarkDelivered(ctx context.Context, questionIDs []int64, at time.Time) error

	// PendingTickets returns menu-update tickets not yet acknowledged by
	// the platform, oldest first.
	PendingTickets(ctx context.Context, platform Platform) ([]int64, error)
	// AcknowledgeTickets stamps the platform's ack column for the given tickets.
	AcknowledgeTickets(ctx context.Context, platform Platform, ticketIDs []int64, at time.Time) error
}
