package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// HandleText dispatches a plain text message from the user.
func (e *Engine) HandleText(ctx context.Context, platformID int64, text string) error {
	return e.handle(ctx, platformID, strings.TrimSpace(text))
}

// HandleToken dispatches a callback token from the user.
func (e *Engine) HandleToken(ctx context.Context, platformID int64, token string) error {
	return e.handle(ctx, platformID, strings.TrimSpace(token))
}

func (e *Engine) handle(ctx context.Context, platformID int64, input string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.compiled == nil {
		return fmt.Errorf("engine: not loaded")
	}
	if input == "" {
		return nil
	}

	user, known, err := e.lookupUser(ctx, platformID)
	if err != nil {
		return err
	}
	if known && (user.IsBlocked || user.RoleID == RoleBlocked) {
		// Blocked users get no reply at all.
		e.log.Debug("blocked input dropped",
			slog.String("event", "dispatch"),
			slog.Int64("user_id", platformID),
			slog.String("outcome", "dropped"),
		)
		return nil
	}

	sess := e.sessionFor(user, known, platformID)
	e.step(ctx, &user, known, platformID, sess, input)
	return nil
}

// sessionFor returns the user's session, deriving a fresh one from the
// role and main-menu link when none exists or the remembered menu is
// gone from the compiled graph.
func (e *Engine) sessionFor(user User, known bool, platformID int64) *Session {
	sess := e.sessions.get(platformID)
	if sess != nil && e.sessionValid(sess) {
		// A session left by a since-deleted user row falls back to registration.
		if known || sess.State == StateUnregistered {
			return sess
		}
	}

	sess = &Session{State: StateUnregistered, MenuID: MenuRegistration}
	if known {
		if menuID, ok := e.mainMenuFor(user); ok {
			if user.RoleID == RoleAdmin {
				sess = &Session{State: StateAdminMain, MenuID: MenuAdminMain}
			} else {
				sess = &Session{State: StateMainMenu, MenuID: menuID}
			}
		}
		// A known user whose role or menu vanished re-registers.
	}
	e.sessions.put(platformID, sess)
	return sess
}

func (e *Engine) sessionValid(sess *Session) bool {
	return e.compiled.Menu(sess.MenuID) != nil
}

func (e *Engine) step(ctx context.Context, user *User, known bool, platformID int64, sess *Session, input string) {
	switch sess.State {
	case StateUnregistered:
		e.stepRegistration(ctx, user, known, platformID, sess, input)
	case StateAskAdmin:
		e.stepAskAdmin(ctx, user, platformID, sess, input)
	case StateAdminMain, StateAdminAnswering, StateAdminConfirmBlock:
		e.stepAdmin(ctx, user, platformID, sess, input)
	default:
		e.stepMenu(ctx, user, platformID, sess, input)
	}
}

func (e *Engine) stepRegistration(ctx context.Context, user *User, known bool, platformID int64, sess *Session, input string) {
	cmd, ok := e.compiled.Resolve(MenuRegistration, input)
	if !ok || cmd.Kind != CmdRegister {
		e.render(ctx, nil, platformID, MenuRegistration, TextChooseRole)
		return
	}

	if known {
		// Re-registration: the role changes, subscription membership moves.
		oldRole := user.RoleID
		if err := e.store.ChangeRole(ctx, user.ID, cmd.RoleID); err != nil {
			e.log.Error("role change failed",
				slog.String("event", "register"),
				slog.Int64("user_id", platformID),
				slog.Int64("role_id", cmd.RoleID),
				slog.String("err", err.Error()),
			)
			e.render(ctx, nil, platformID, MenuRegistration, TextChooseRole)
			return
		}
		user.RoleID = cmd.RoleID
		e.users[platformID] = *user
		e.registry.Move(oldRole, cmd.RoleID, platformID)
	} else {
		created, err := e.store.CreateUser(ctx, e.platform, platformID, cmd.RoleID)
		if err != nil {
			e.log.Error("user create failed",
				slog.String("event", "register"),
				slog.Int64("user_id", platformID),
				slog.Int64("role_id", cmd.RoleID),
				slog.String("err", err.Error()),
			)
			e.render(ctx, nil, platformID, MenuRegistration, TextChooseRole)
			return
		}
		*user = created
		e.users[platformID] = created
	}

	menuID, ok := e.mainMenuFor(*user)
	if !ok {
		e.log.Warn("main menu missing after registration",
			slog.String("event", "register"),
			slog.Int64("user_id", platformID),
			slog.Int64("role_id", user.RoleID),
			slog.String("err_code", "MENU_MISSING"),
		)
		e.render(ctx, nil, platformID, MenuRegistration, TextChooseRole)
		return
	}
	sess.State = StateMainMenu
	sess.MenuID = menuID
	e.log.Info("user registered",
		slog.String("event", "register"),
		slog.Int64("user_id", platformID),
		slog.Int64("role_id", user.RoleID),
		slog.Int64("menu_id", menuID),
	)
	e.render(ctx, user, platformID, menuID, "")
}

func (e *Engine) stepMenu(ctx context.Context, user *User, platformID int64, sess *Session, input string) {
	cmd, ok := e.compiled.Resolve(sess.MenuID, input)
	if !ok {
		e.render(ctx, user, platformID, sess.MenuID, TextUnknownCommand)
		return
	}

	switch cmd.Kind {
	case CmdNoop:
		e.render(ctx, user, platformID, sess.MenuID, "")
	case CmdMainMenu:
		e.gotoMainMenu(ctx, user, platformID, sess, "")
	case CmdSubmenu:
		if e.compiled.Menu(cmd.TargetMenu) == nil {
			e.log.Warn("submenu missing",
				slog.String("event", "dispatch"),
				slog.Int64("menu_id", cmd.TargetMenu),
				slog.Int64("user_id", platformID),
				slog.String("err_code", "MENU_MISSING"),
			)
			e.render(ctx, user, platformID, sess.MenuID, TextUnknownCommand)
			return
		}
		sess.State = StateSubmenu
		sess.MenuID = cmd.TargetMenu
		e.render(ctx, user, platformID, cmd.TargetMenu, "")
	case CmdInfo:
		e.sendInfo(ctx, platformID, cmd.Button)
	case CmdSubscribe:
		e.toggleSubscription(ctx, user, platformID, sess, cmd.Button)
	case CmdReminder:
		e.sendText(ctx, platformID, TextReminderStub)
	case CmdAskAdmin:
		sess.State = StateAskAdmin
		sess.MenuID = MenuAskAdmin
		sess.AskReply = cmd.Button.ReceivedAnswer
		prompt := cmd.Button.Answer
		if prompt == "" {
			prompt = cmd.Button.Name
		}
		e.render(ctx, user, platformID, MenuAskAdmin, prompt)
	default:
		e.render(ctx, user, platformID, sess.MenuID, TextUnknownCommand)
	}
}

// sendInfo delivers an info button's answer, with the attachment when
// present. A failed document send degrades to the caption text.
func (e *Engine) sendInfo(ctx context.Context, platformID int64, btn *Button) {
	if btn.File == "" {
		e.sendText(ctx, platformID, btn.Answer)
		return
	}
	if err := e.transport.SendDocument(ctx, platformID, btn.File, btn.Answer); err != nil {
		e.log.Warn("document send failed",
			slog.String("event", "send"),
			slog.Int64("user_id", platformID),
			slog.Int64("button_id", btn.ID),
			slog.String("file", btn.File),
			slog.String("err", err.Error()),
			slog.String("err_code", "DELIVERY_FAILED"),
		)
		e.sendText(ctx, platformID, btn.Answer)
	}
}

// toggleSubscription flips the user's membership. The membership check,
// the store write, the registry update, and the reply choice are one
// step under the engine lock; the store write comes first so a failure
// leaves the registry untouched.
func (e *Engine) toggleSubscription(ctx context.Context, user *User, platformID int64, sess *Session, btn *Button) {
	roleID := user.RoleID
	subscribed := e.registry.IsSubscribed(roleID, platformID)
	now := time.Now().UTC()

	if err := e.store.SetSubscribed(ctx, user.ID, !subscribed, now); err != nil {
		e.log.Error("subscription write failed",
			slog.String("event", "subscribe"),
			slog.Int64("user_id", platformID),
			slog.Int64("role_id", roleID),
			slog.String("err", err.Error()),
		)
		e.sendText(ctx, platformID, TextSubscribeTrouble)
		return
	}

	var regErr error
	var reply string
	if subscribed {
		regErr = e.registry.Unsubscribe(roleID, platformID)
		reply = btn.OffAnswer
		user.IsSubscribed = false
		user.SubscribedAt = nil
	} else {
		regErr = e.registry.Subscribe(roleID, platformID)
		reply = btn.OnAnswer
		user.IsSubscribed = true
		user.SubscribedAt = &now
	}
	e.users[platformID] = *user
	if regErr != nil {
		var uerr *UserError
		code := ""
		if errors.As(regErr, &uerr) {
			code = uerr.Code()
		}
		e.log.Warn("registry out of step",
			slog.String("event", "subscribe"),
			slog.Int64("user_id", platformID),
			slog.Int64("role_id", roleID),
			slog.String("err", regErr.Error()),
			slog.String("err_code", code),
		)
	}
	if reply == "" {
		reply = TextChooseOption
	}
	// Re-render so the subscribe label flips with the new membership.
	e.render(ctx, user, platformID, sess.MenuID, reply)
}

func (e *Engine) stepAskAdmin(ctx context.Context, user *User, platformID int64, sess *Session, input string) {
	if cmd, ok := e.compiled.Resolve(MenuAskAdmin, input); ok && cmd.Kind == CmdCancel {
		e.gotoMainMenu(ctx, user, platformID, sess, "")
		return
	}

	q, err := e.store.AddQuestion(ctx, user.ID, input)
	if err != nil {
		e.log.Error("question store failed",
			slog.String("event", "question"),
			slog.Int64("user_id", platformID),
			slog.String("err", err.Error()),
		)
		e.gotoMainMenu(ctx, user, platformID, sess, TextUnknownCommand)
		return
	}
	e.log.Info("question stored",
		slog.String("event", "question"),
		slog.Int64("user_id", platformID),
		slog.Int64("question_id", q.ID),
	)
	reply := sess.AskReply
	if reply == "" {
		reply = TextQuestionReceived
	}
	sess.AskReply = ""
	e.gotoMainMenu(ctx, user, platformID, sess, reply)
}

func (e *Engine) gotoMainMenu(ctx context.Context, user *User, platformID int64, sess *Session, text string) {
	menuID, ok := e.mainMenuFor(*user)
	if !ok {
		sess.State = StateUnregistered
		sess.MenuID = MenuRegistration
		e.render(ctx, nil, platformID, MenuRegistration, TextChooseRole)
		return
	}
	sess.State = StateMainMenu
	sess.MenuID = menuID
	e.render(ctx, user, platformID, menuID, text)
}

func (e *Engine) stepAdmin(ctx context.Context, user *User, platformID int64, sess *Session, input string) {
	switch sess.State {
	case StateAdminMain:
		cmd, ok := e.compiled.Resolve(MenuAdminMain, input)
		if !ok || cmd.Kind != CmdAdminAnswer {
			e.render(ctx, nil, platformID, MenuAdminMain, TextAdminMenu)
			return
		}
		e.advanceQuestion(ctx, platformID, sess, "")

	case StateAdminAnswering:
		if cmd, ok := e.compiled.Resolve(MenuAdminAnswer, input); ok {
			switch cmd.Kind {
			case CmdAdminBlock:
				sess.State = StateAdminConfirmBlock
				sess.MenuID = MenuAdminConfirmBlock
				e.render(ctx, nil, platformID, MenuAdminConfirmBlock, TextConfirmBlock)
				return
			case CmdAdminCancel:
				sess.State = StateAdminMain
				sess.MenuID = MenuAdminMain
				e.render(ctx, nil, platformID, MenuAdminMain, TextAdminMenu)
				return
			}
		}
		if err := e.store.AnswerQuestion(ctx, sess.QuestionID, input, time.Now().UTC()); err != nil {
			e.log.Error("answer store failed",
				slog.String("event", "answer"),
				slog.Int64("question_id", sess.QuestionID),
				slog.String("err", err.Error()),
			)
			e.render(ctx, nil, platformID, MenuAdminAnswer, sess.QuestionText)
			return
		}
		e.log.Info("question answered",
			slog.String("event", "answer"),
			slog.Int64("question_id", sess.QuestionID),
		)
		e.advanceQuestion(ctx, platformID, sess, TextAnswerAccepted)

	case StateAdminConfirmBlock:
		cmd, ok := e.compiled.Resolve(MenuAdminConfirmBlock, input)
		if !ok {
			e.render(ctx, nil, platformID, MenuAdminConfirmBlock, TextConfirmBlock)
			return
		}
		switch cmd.Kind {
		case CmdAdminConfirm:
			e.blockQuestionOwner(ctx, platformID, sess)
		case CmdAdminCancel:
			sess.State = StateAdminAnswering
			sess.MenuID = MenuAdminAnswer
			e.render(ctx, nil, platformID, MenuAdminAnswer, sess.QuestionText)
		default:
			e.render(ctx, nil, platformID, MenuAdminConfirmBlock, TextConfirmBlock)
		}
	}
}

// advanceQuestion pops the oldest open question into the session, or
// returns the operator to the admin menu when the queue is empty.
// A non-empty prefix (answer accepted) precedes the next question text.
func (e *Engine) advanceQuestion(ctx context.Context, platformID int64, sess *Session, prefix string) {
	q, err := e.store.OpenQuestion(ctx)
	if errors.Is(err, ErrNotFound) {
		sess.State = StateAdminMain
		sess.MenuID = MenuAdminMain
		text := TextNoQuestions
		if prefix != "" {
			text = prefix + "\n" + TextNoQuestions
		}
		e.render(ctx, nil, platformID, MenuAdminMain, text)
		return
	}
	if err != nil {
		e.log.Error("question fetch failed",
			slog.String("event", "answer"),
			slog.String("err", err.Error()),
		)
		sess.State = StateAdminMain
		sess.MenuID = MenuAdminMain
		e.render(ctx, nil, platformID, MenuAdminMain, TextAdminMenu)
		return
	}

	sess.State = StateAdminAnswering
	sess.MenuID = MenuAdminAnswer
	sess.QuestionID = q.ID
	sess.QuestionUserID = q.UserID
	sess.QuestionText = q.Text
	text := q.Text
	if prefix != "" {
		text = prefix + "\n\n" + q.Text
	}
	e.render(ctx, nil, platformID, MenuAdminAnswer, text)
}

// blockQuestionOwner blocks the author of the current question. The
// store cascades the delete of their open questions; local mirrors of a
// same-platform user are updated immediately rather than waiting for
// the next refresh tick.
func (e *Engine) blockQuestionOwner(ctx context.Context, platformID int64, sess *Session) {
	if err := e.store.BlockUser(ctx, sess.QuestionUserID); err != nil {
		e.log.Error("block failed",
			slog.String("event", "block"),
			slog.Int64("user_id", sess.QuestionUserID),
			slog.String("err", err.Error()),
		)
		e.render(ctx, nil, platformID, MenuAdminConfirmBlock, TextConfirmBlock)
		return
	}
	for pid, u := range e.users {
		if u.ID != sess.QuestionUserID {
			continue
		}
		_ = e.registry.Unsubscribe(u.RoleID, pid)
		u.IsBlocked = true
		u.IsSubscribed = false
		e.users[pid] = u
		e.sessions.drop(pid)
		break
	}
	e.log.Info("user blocked",
		slog.String("event", "block"),
		slog.Int64("user_id", sess.QuestionUserID),
		slog.Int64("question_id", sess.QuestionID),
	)

	sess.State = StateAdminMain
	sess.MenuID = MenuAdminMain
	sess.QuestionID = 0
	sess.QuestionUserID = 0
	sess.QuestionText = ""
	e.render(ctx, nil, platformID, MenuAdminMain, TextUserBlocked)
}
