package engine

import "time"

// Platform tags the two supported transports. The tag is stored alongside
// users and tickets so both processes can share one database.
type Platform string

const (
	// PlatformTelegram identifies the Telegram bot process.
	PlatformTelegram Platform = "tg"
	// PlatformVK identifies the VK bot process.
	PlatformVK Platform = "vk"
)

// ButtonType discriminates the button variants of the menu graph.
type ButtonType string

const (
	ButtonSubmenu   ButtonType = "submenu"
	ButtonInfo      ButtonType = "info"
	ButtonSubscribe ButtonType = "subscribe"
	ButtonReminder  ButtonType = "reminder"
	ButtonAskAdmin  ButtonType = "ask_admin"
)

// Reserved role identifiers. Neither value may appear in the roles table;
// operator-defined roles start at 1.
const (
	// RoleAdmin marks operators answering questions.
	RoleAdmin int64 = 0
	// RoleBlocked is the sentinel role of a blocked user. Checked before
	// any dispatch so blocked input is dropped silently.
	RoleBlocked int64 = -1
)

// Reserved menu identifiers for compiled synthetic menus. Stored menu
// nodes use positive identifiers only.
const (
	MenuAdminMain         int64 = 0
	MenuRegistration      int64 = -1
	MenuAdminAnswer       int64 = -2
	MenuAdminConfirmBlock int64 = -3
	MenuAskAdmin          int64 = -4
)

// Role partitions users and subscriber sets and links to its root menu.
type Role struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	MenuID int64  `db:"menu_id"`
}

// MenuNode is one node of the stored menu tree with its buttons in
// display order.
type MenuNode struct {
	ID       int64  `db:"id"`
	ParentID *int64 `db:"parent_id"`
	Name     string `db:"name"`
	Order    int    `db:"ord"`
	Buttons  []Button
}

// Root reports whether the node has no parent.
func (n MenuNode) Root() bool { return n.ParentID == nil }

// Button is the tagged union over the five menu button variants. Type
// selects which payload fields are meaningful; the rest stay zero.
type Button struct {
	ID     int64      `db:"id"`
	MenuID int64      `db:"menu_id"`
	Type   ButtonType `db:"type"`
	Name   string     `db:"name"`
	Order  int        `db:"ord"`

	// submenu
	ChildMenuID int64 `db:"child_menu_id"`

	// info
	Answer string `db:"answer"`
	File   string `db:"file"`

	// subscribe
	OnLabel   string `db:"on_label"`
	OffLabel  string `db:"off_label"`
	OnAnswer  string `db:"on_answer"`
	OffAnswer string `db:"off_answer"`

	// reminder
	ReminderText string `db:"reminder_text"`

	// ask_admin: Answer doubles as the prompt shown on entry,
	// ReceivedAnswer is sent back once the question is stored.
	ReceivedAnswer string `db:"received_answer"`
}

// User holds the persistent facts of a session. (Platform, PlatformID)
// is unique; RoleBlocked users never reach the state machine.
type User struct {
	ID           int64      `db:"id"`
	Platform     Platform   `db:"platform"`
	PlatformID   int64      `db:"platform_id"`
	RoleID       int64      `db:"role_id"`
	IsSubscribed bool       `db:"is_subscribed"`
	SubscribedAt *time.Time `db:"subscribed_at"`
	IsBlocked    bool       `db:"is_blocked"`
}

// Question is one user question with its answer lifecycle timestamps.
// AnsweredAt nil means open; DeliveredAt nil means the answer has not
// been confirmed sent.
type Question struct {
	ID          int64      `db:"id"`
	UserID      int64      `db:"user_id"`
	PlatformID  int64      `db:"platform_id"`
	Text        string     `db:"question"`
	Answer      string     `db:"answer"`
	CreatedAt   time.Time  `db:"created_at"`
	AnsweredAt  *time.Time `db:"answered_at"`
	DeliveredAt *time.Time `db:"delivered_at"`
}

// Open reports whether the question still awaits an admin answer.
func (q Question) Open() bool { return q.AnsweredAt == nil }

// Ticket is one append-only menu-update marker. Each platform
// acknowledges independently; a nil ack means pending for that platform.
type Ticket struct {
	ID         int64      `db:"id"`
	CreatedAt  time.Time  `db:"created_at"`
	TelegramAt *time.Time `db:"telegram_ack_at"`
	VKAt       *time.Time `db:"vk_ack_at"`
}
