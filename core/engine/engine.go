package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/menubot/core/logger"
)

// Options configures a new Engine.
type Options struct {
	Store         Store
	Transport     Transport
	Platform      Platform
	Mode          DispatchMode
	ButtonsPerRow int
	// SendInterval is the mandatory pause between consecutive answer
	// deliveries in one sweep.
	SendInterval time.Duration
	Log          *slog.Logger
}

// Engine drives all conversational state of one platform process. Every
// mutation (update dispatch, reload, refresh) runs under one mutex, so
// handlers and periodic jobs never interleave inside a step. The
// delivery sweep is the exception: it touches only store and transport
// and paces sends without holding the engine lock.
type Engine struct {
	store         Store
	transport     Transport
	platform      Platform
	mode          DispatchMode
	buttonsPerRow int
	sendInterval  time.Duration
	log           *slog.Logger

	mu       sync.Mutex
	compiled *Compiled
	registry *SubscriptionRegistry
	sessions *sessionStore
	users    map[int64]User
	admins   map[int64]struct{}
}

// New constructs an Engine. Call Reload before handling input.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("engine: transport is required")
	}
	if opts.Platform != PlatformTelegram && opts.Platform != PlatformVK {
		return nil, fmt.Errorf("engine: unknown platform %q", opts.Platform)
	}
	log := opts.Log
	if log == nil {
		log = logger.ENG
	}
	if log == nil {
		log = slog.Default()
	}
	perRow := opts.ButtonsPerRow
	if perRow <= 0 {
		perRow = DefaultButtonsPerRow
	}
	interval := opts.SendInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		store:         opts.Store,
		transport:     opts.Transport,
		platform:      opts.Platform,
		mode:          opts.Mode,
		buttonsPerRow: perRow,
		sendInterval:  interval,
		log:           log,
		registry:      NewSubscriptionRegistry(),
		sessions:      newSessionStore(),
		users:         make(map[int64]User),
		admins:        make(map[int64]struct{}),
	}, nil
}

// Platform returns the platform this engine serves.
func (e *Engine) Platform() Platform { return e.platform }

// Reload recompiles the menu graph and reseeds all store-derived state.
// Reads happen outside the lock; the swap is atomic.
func (e *Engine) Reload(ctx context.Context) error {
	start := time.Now()

	roles, err := e.store.Roles(ctx)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	menus, err := e.store.Menus(ctx)
	if err != nil {
		return fmt.Errorf("load menus: %w", err)
	}
	compiled := Compile(roles, menus, CompileOptions{Mode: e.mode, ButtonsPerRow: e.buttonsPerRow})

	users, admins, subs, err := e.loadUsers(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiled = compiled
	e.users = users
	e.admins = admins
	e.registry.Seed(subs)
	subscribers := e.registry.Count()
	e.mu.Unlock()

	e.log.Info("engine reloaded",
		slog.String("event", "reload"),
		slog.Int("roles", len(roles)),
		slog.Int("menus", len(compiled.Menus)),
		slog.Int("count", len(users)),
		slog.Int("subscribers", subscribers),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// RefreshUsers re-reads users, operators, and subscriber sets without
// recompiling menus. Runs on the faster role-refresh tick so role edits
// and blocks land before the next menu sync.
func (e *Engine) RefreshUsers(ctx context.Context) error {
	users, admins, subs, err := e.loadUsers(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.users = users
	e.admins = admins
	e.registry.Seed(subs)
	e.mu.Unlock()

	e.log.Debug("users refreshed",
		slog.String("event", "refresh"),
		slog.Int("count", len(users)),
	)
	return nil
}

func (e *Engine) loadUsers(ctx context.Context) (map[int64]User, map[int64]struct{}, map[int64][]int64, error) {
	list, err := e.store.Users(ctx, e.platform)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load users: %w", err)
	}
	users := make(map[int64]User, len(list))
	for _, u := range list {
		users[u.PlatformID] = u
	}

	adminIDs, err := e.store.AdminIDs(ctx, e.platform)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load admins: %w", err)
	}
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	subs, err := e.store.Subscribers(ctx, e.platform)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load subscribers: %w", err)
	}
	return users, admins, subs, nil
}

// lookupUser resolves the acting user under the engine lock. Operators
// get a synthetic admin-role user even without a users row.
func (e *Engine) lookupUser(ctx context.Context, platformID int64) (User, bool, error) {
	if _, ok := e.admins[platformID]; ok {
		return User{Platform: e.platform, PlatformID: platformID, RoleID: RoleAdmin}, true, nil
	}
	if u, ok := e.users[platformID]; ok {
		return u, true, nil
	}
	u, err := e.store.UserByPlatformID(ctx, e.platform, platformID)
	if errors.Is(err, ErrNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	e.users[platformID] = u
	return u, true, nil
}

// mainMenuFor returns the root menu of the user's role.
func (e *Engine) mainMenuFor(user User) (int64, bool) {
	if user.RoleID == RoleAdmin {
		return MenuAdminMain, true
	}
	menuID, ok := e.compiled.MainMenus[user.RoleID]
	if !ok {
		return 0, false
	}
	if e.compiled.Menu(menuID) == nil {
		return 0, false
	}
	return menuID, true
}

// render sends text with the keyboard of the given menu. The membership
// check and the subscribe-label choice happen here, inside the locked
// step that decided to render. Transport failures are logged and
// swallowed; the sweep or the user's next input retries naturally.
func (e *Engine) render(ctx context.Context, user *User, platformID, menuID int64, text string) {
	menu := e.compiled.Menu(menuID)
	if menu == nil {
		e.log.Warn("menu missing",
			slog.String("event", "render"),
			slog.Int64("menu_id", menuID),
			slog.Int64("user_id", platformID),
			slog.String("err_code", "MENU_MISSING"),
		)
		return
	}
	subscribed := false
	if user != nil && user.RoleID > 0 {
		subscribed = e.registry.IsSubscribed(user.RoleID, platformID)
	}
	if text == "" {
		text = menu.Name
	}
	if text == "" {
		text = TextChooseOption
	}
	if err := e.transport.Render(ctx, platformID, menu.View(subscribed), text); err != nil {
		derr := &DeliveryError{Platform: e.platform, PlatformID: platformID, Err: err}
		e.log.Warn("render failed",
			slog.String("event", "render"),
			slog.Int64("menu_id", menuID),
			slog.Int64("user_id", platformID),
			slog.String("err", derr.Error()),
			slog.String("err_code", derr.Code()),
		)
	}
}

// sendText delivers a plain reply, logging transport failures.
func (e *Engine) sendText(ctx context.Context, platformID int64, text string) {
	if err := e.transport.SendText(ctx, platformID, text); err != nil {
		derr := &DeliveryError{Platform: e.platform, PlatformID: platformID, Err: err}
		e.log.Warn("send failed",
			slog.String("event", "send"),
			slog.Int64("user_id", platformID),
			slog.String("err", derr.Error()),
			slog.String("err_code", derr.Code()),
		)
	}
}
