package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, store *fakeStore, platform Platform, mode DispatchMode) (*Engine, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	e, err := New(Options{
		Store:         store,
		Transport:     tr,
		Platform:      platform,
		Mode:          mode,
		ButtonsPerRow: 2,
		SendInterval:  time.Millisecond,
		Log:           discardLog(),
	})
	require.NoError(t, err)
	require.NoError(t, e.Reload(context.Background()))
	return e, tr
}

func TestRegistrationAndAskAdminFlow(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addAdmin(PlatformTelegram, 999)
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	// A never-seen user gets the registration menu for any input.
	require.NoError(t, e.HandleText(ctx, uid, "hello"))
	last := tr.lastRender()
	require.NotNil(t, last)
	require.Equal(t, MenuRegistration, last.MenuID)
	require.Equal(t, TextChooseRole, last.Text)

	// Selecting a role creates the user and lands on the role's main menu.
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	last = tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)
	created := store.userByPlatform(PlatformTelegram, uid)
	require.NotNil(t, created)
	require.Equal(t, int64(1), created.RoleID)

	// Unknown input re-displays the same menu with a notice.
	require.NoError(t, e.HandleText(ctx, uid, "gibberish"))
	last = tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)
	require.Equal(t, TextUnknownCommand, last.Text)

	// Ask-admin opens the cancel-only keyboard with the prompt.
	require.NoError(t, e.HandleText(ctx, uid, "Ask admin"))
	last = tr.lastRender()
	require.Equal(t, MenuAskAdmin, last.MenuID)
	require.Equal(t, "Type your question:", last.Text)

	// Free text stores the question and returns to the main menu.
	require.NoError(t, e.HandleText(ctx, uid, "When is the next session?"))
	last = tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)
	require.Equal(t, "Thanks, we will answer soon.", last.Text)
	require.Equal(t, 1, store.questionCount(created.ID))

	// The operator pops the question and answers it.
	require.NoError(t, e.HandleText(ctx, 999, "hi"))
	last = tr.lastRender()
	require.Equal(t, MenuAdminMain, last.MenuID)

	require.NoError(t, e.HandleText(ctx, 999, LabelAdminAnswer))
	last = tr.lastRender()
	require.Equal(t, MenuAdminAnswer, last.MenuID)
	require.Contains(t, last.Text, "When is the next session?")

	require.NoError(t, e.HandleText(ctx, 999, "Tuesday 5pm"))
	last = tr.lastRender()
	require.Equal(t, MenuAdminMain, last.MenuID)
	require.Contains(t, last.Text, TextAnswerAccepted)
	require.Contains(t, last.Text, TextNoQuestions)

	q, err := store.OpenQuestion(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, q.ID)
}

func TestAskAdminCancelIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	require.NoError(t, e.HandleText(ctx, uid, "Ask admin"))
	require.NoError(t, e.HandleText(ctx, uid, LabelCancel))

	last := tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)
	user := store.userByPlatform(PlatformTelegram, uid)
	require.Equal(t, 0, store.questionCount(user.ID))
}

func TestSubscribeToggleRestoresSet(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	require.Equal(t, 0, e.registry.Count())

	require.NoError(t, e.HandleText(ctx, uid, "Subscribe"))
	last := tr.lastRender()
	require.Equal(t, "Subscribed!", last.Text)
	// The keyboard re-renders with the flipped label.
	require.Equal(t, "Unsubscribe", last.View.Rows[1][0].Label)
	require.True(t, e.registry.IsSubscribed(1, uid))
	stored := store.userByPlatform(PlatformTelegram, uid)
	require.True(t, stored.IsSubscribed)
	require.NotNil(t, stored.SubscribedAt)

	require.NoError(t, e.HandleText(ctx, uid, "Unsubscribe"))
	last = tr.lastRender()
	require.Equal(t, "Unsubscribed.", last.Text)
	require.Equal(t, "Subscribe", last.View.Rows[1][0].Label)
	require.False(t, e.registry.IsSubscribed(1, uid))
	require.Equal(t, 0, e.registry.Count())
	stored = store.userByPlatform(PlatformTelegram, uid)
	require.False(t, stored.IsSubscribed)
	require.Nil(t, stored.SubscribedAt)
}

func TestBlockedUserIsSilentlyDropped(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	user := store.userByPlatform(PlatformTelegram, uid)
	require.NoError(t, store.BlockUser(ctx, user.ID))
	require.NoError(t, e.RefreshUsers(ctx))

	before := tr.callCount()
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	require.NoError(t, e.HandleText(ctx, uid, "anything at all"))
	require.Equal(t, before, tr.callCount())
}

func TestAdminBlockCascadesQuestions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.addAdmin(PlatformTelegram, 999)
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	require.NoError(t, e.HandleText(ctx, uid, "Ask admin"))
	require.NoError(t, e.HandleText(ctx, uid, "first question"))
	require.NoError(t, e.HandleText(ctx, uid, "Ask admin"))
	require.NoError(t, e.HandleText(ctx, uid, "second question"))

	require.NoError(t, e.HandleText(ctx, 999, LabelAdminAnswer))

	// Cancelling the confirmation redisplays the current question.
	require.NoError(t, e.HandleText(ctx, 999, LabelAdminBlock))
	last := tr.lastRender()
	require.Equal(t, MenuAdminConfirmBlock, last.MenuID)
	require.NoError(t, e.HandleText(ctx, 999, LabelCancel))
	last = tr.lastRender()
	require.Equal(t, MenuAdminAnswer, last.MenuID)
	require.Contains(t, last.Text, "first question")

	// Confirming blocks the user and deletes every question they own.
	require.NoError(t, e.HandleText(ctx, 999, LabelAdminBlock))
	require.NoError(t, e.HandleText(ctx, 999, LabelAdminConfirm))
	last = tr.lastRender()
	require.Equal(t, MenuAdminMain, last.MenuID)
	require.Equal(t, TextUserBlocked, last.Text)

	user := store.userByPlatform(PlatformTelegram, uid)
	require.True(t, user.IsBlocked)
	require.Equal(t, 0, store.questionCount(user.ID))

	// The freshly blocked user is dropped without waiting for a refresh.
	before := tr.callCount()
	require.NoError(t, e.HandleText(ctx, uid, "hello?"))
	require.Equal(t, before, tr.callCount())
}

func TestOpenQuestionOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	u, err := store.CreateUser(ctx, PlatformTelegram, 100, 1)
	require.NoError(t, err)

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		_, err := store.AddQuestion(ctx, u.ID, text)
		require.NoError(t, err)
	}

	for _, want := range texts {
		q, err := store.OpenQuestion(ctx)
		require.NoError(t, err)
		require.Equal(t, want, q.Text)
		require.NoError(t, store.AnswerQuestion(ctx, q.ID, "done", time.Now()))
	}
	_, err = store.OpenQuestion(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTicketsAcknowledgedPerPlatform(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tg, _ := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	vk, _ := newTestEngine(t, store, PlatformVK, DispatchToken)

	store.addTicket()
	require.NoError(t, tg.SyncMenus(ctx))

	pendingTG, err := store.PendingTickets(ctx, PlatformTelegram)
	require.NoError(t, err)
	require.Empty(t, pendingTG)

	// The other platform still sees the ticket and recompiles on its own cycle.
	pendingVK, err := store.PendingTickets(ctx, PlatformVK)
	require.NoError(t, err)
	require.Len(t, pendingVK, 1)

	require.NoError(t, vk.SyncMenus(ctx))
	pendingVK, err = store.PendingTickets(ctx, PlatformVK)
	require.NoError(t, err)
	require.Empty(t, pendingVK)
}

func TestSessionResetOnRestart(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	first, _ := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)
	require.NoError(t, first.HandleText(ctx, uid, "start"))
	require.NoError(t, first.HandleText(ctx, uid, "Parent"))

	// A fresh process re-derives the menu from role and main-menu link
	// instead of asking the user to register again.
	second, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	require.NoError(t, second.HandleText(ctx, uid, "gibberish"))
	last := tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)
	require.Equal(t, TextUnknownCommand, last.Text)
}

func TestReRegistrationMovesSubscription(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))
	require.NoError(t, e.HandleText(ctx, uid, "Subscribe"))
	require.True(t, e.registry.IsSubscribed(1, uid))

	// The role disappears; the user falls back to registration and the
	// new choice moves role and membership together.
	store.removeRole(1)
	require.NoError(t, e.Reload(ctx))
	require.NoError(t, e.HandleText(ctx, uid, "anything"))
	last := tr.lastRender()
	require.Equal(t, MenuRegistration, last.MenuID)

	require.NoError(t, e.HandleText(ctx, uid, "Teacher"))
	user := store.userByPlatform(PlatformTelegram, uid)
	require.Equal(t, int64(2), user.RoleID)
	require.True(t, e.registry.IsSubscribed(2, uid))
	require.False(t, e.registry.IsSubscribed(1, uid))
	last = tr.lastRender()
	require.Equal(t, int64(20), last.MenuID)
}

func TestDeliverAnswersStampsOnlySent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)

	u1, err := store.CreateUser(ctx, PlatformTelegram, 100, 1)
	require.NoError(t, err)
	u2, err := store.CreateUser(ctx, PlatformTelegram, 200, 1)
	require.NoError(t, err)

	q1, err := store.AddQuestion(ctx, u1.ID, "when?")
	require.NoError(t, err)
	q2, err := store.AddQuestion(ctx, u2.ID, "where?")
	require.NoError(t, err)
	require.NoError(t, store.AnswerQuestion(ctx, q1.ID, "Tuesday", time.Now()))
	require.NoError(t, store.AnswerQuestion(ctx, q2.ID, "Room 5", time.Now()))

	// One recipient rejects the send; only the delivered answer is stamped.
	tr.failText[200] = true
	require.NoError(t, e.DeliverAnswers(ctx))
	require.NotNil(t, store.question(q1.ID).DeliveredAt)
	require.Nil(t, store.question(q2.ID).DeliveredAt)

	sent := tr.lastText()
	require.NotNil(t, sent)
	require.Equal(t, int64(100), sent.PlatformID)
	require.Contains(t, sent.Text, "when?")
	require.Contains(t, sent.Text, "Tuesday")

	// The failed one is re-picked by the next sweep.
	tr.failText[200] = false
	require.NoError(t, e.DeliverAnswers(ctx))
	require.NotNil(t, store.question(q2.ID).DeliveredAt)
}

func TestInfoDocumentFallsBackToText(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.menus[0].Buttons = append(store.menus[0].Buttons, Button{
		ID: 7, MenuID: 10, Type: ButtonInfo, Name: "Rules", Order: 6,
		Answer: "Rules of the club", File: "rules.pdf",
	})
	e, tr := newTestEngine(t, store, PlatformTelegram, DispatchLabel)
	uid := int64(100)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	require.NoError(t, e.HandleText(ctx, uid, "Parent"))

	require.NoError(t, e.HandleText(ctx, uid, "Rules"))
	require.Len(t, tr.docs, 1)
	require.Equal(t, "rules.pdf", tr.docs[0].File)

	tr.failDocs = true
	require.NoError(t, e.HandleText(ctx, uid, "Rules"))
	last := tr.lastText()
	require.NotNil(t, last)
	require.Equal(t, "Rules of the club", last.Text)
}

func TestTokenDispatchFlow(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e, tr := newTestEngine(t, store, PlatformVK, DispatchToken)
	uid := int64(500)

	require.NoError(t, e.HandleText(ctx, uid, "start"))
	last := tr.lastRender()
	require.Equal(t, MenuRegistration, last.MenuID)

	require.NoError(t, e.HandleToken(ctx, uid, Token(CmdRegister, 1)))
	last = tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)

	require.NoError(t, e.HandleToken(ctx, uid, Token(CmdSubmenu, 11)))
	last = tr.lastRender()
	require.Equal(t, int64(11), last.MenuID)

	require.NoError(t, e.HandleToken(ctx, uid, Token(CmdMainMenu, 0)))
	last = tr.lastRender()
	require.Equal(t, int64(10), last.MenuID)
}
