package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parentID(id int64) *int64 { return &id }

func testMenus() []MenuNode {
	return []MenuNode{
		{
			ID:   10,
			Name: "Parent menu",
			Buttons: []Button{
				{ID: 1, MenuID: 10, Type: ButtonSubmenu, Name: "Schedule", Order: 1, ChildMenuID: 11},
				{ID: 2, MenuID: 10, Type: ButtonInfo, Name: "About", Order: 2, Answer: "We teach chess."},
				{ID: 3, MenuID: 10, Type: ButtonSubscribe, Order: 3, OnLabel: "Subscribe", OffLabel: "Unsubscribe", OnAnswer: "Subscribed!", OffAnswer: "Unsubscribed."},
				{ID: 4, MenuID: 10, Type: ButtonAskAdmin, Name: "Ask admin", Order: 4, Answer: "Type your question:", ReceivedAnswer: "Thanks, we will answer soon."},
				{ID: 5, MenuID: 10, Type: ButtonReminder, Name: "Remind me", Order: 5, ReminderText: "lesson"},
			},
		},
		{
			ID:       11,
			ParentID: parentID(10),
			Name:     "Schedule",
			Buttons: []Button{
				{ID: 6, MenuID: 11, Type: ButtonInfo, Name: "Mondays", Order: 1, Answer: "Monday 17:00"},
			},
		},
		{ID: 20, Name: "Teacher menu"},
	}
}

func testRoles() []Role {
	return []Role{
		{ID: 1, Name: "Parent", MenuID: 10},
		{ID: 2, Name: "Teacher", MenuID: 20},
	}
}

func TestCompileIdempotent(t *testing.T) {
	opts := CompileOptions{Mode: DispatchLabel, ButtonsPerRow: 2}
	first := Compile(testRoles(), testMenus(), opts)
	second := Compile(testRoles(), testMenus(), opts)
	require.Equal(t, first, second)

	// Input order must not matter either.
	menus := testMenus()
	menus[0], menus[2] = menus[2], menus[0]
	roles := testRoles()
	roles[0], roles[1] = roles[1], roles[0]
	third := Compile(roles, menus, opts)
	require.Equal(t, first, third)
}

func TestCompileRowGrouping(t *testing.T) {
	c := Compile(testRoles(), testMenus(), CompileOptions{Mode: DispatchLabel, ButtonsPerRow: 2})

	root := c.Menu(10)
	require.NotNil(t, root)
	// Five buttons at width two give three rows; the root has no back entry.
	require.Len(t, root.Rows, 3)
	require.Len(t, root.Rows[0], 2)
	require.Len(t, root.Rows[1], 2)
	require.Len(t, root.Rows[2], 1)

	child := c.Menu(11)
	require.NotNil(t, child)
	// One button plus the appended back row.
	require.Len(t, child.Rows, 2)
	require.Equal(t, LabelBackToMain, child.Rows[1][0].Label)
	cmd, ok := c.Resolve(11, LabelBackToMain)
	require.True(t, ok)
	require.Equal(t, CmdMainMenu, cmd.Kind)
}

func TestCompileEmptyMenuSentinel(t *testing.T) {
	c := Compile(testRoles(), testMenus(), CompileOptions{Mode: DispatchLabel, ButtonsPerRow: 2})

	empty := c.Menu(20)
	require.NotNil(t, empty)
	require.Len(t, empty.Rows, 1)
	require.Equal(t, LabelNoButtons, empty.Rows[0][0].Label)
	cmd, ok := c.Resolve(20, LabelNoButtons)
	require.True(t, ok)
	require.Equal(t, CmdNoop, cmd.Kind)
}

func TestCompileRegistrationMenu(t *testing.T) {
	c := Compile(testRoles(), testMenus(), CompileOptions{Mode: DispatchLabel, ButtonsPerRow: 2})

	reg := c.Menu(MenuRegistration)
	require.NotNil(t, reg)
	require.Len(t, reg.Rows, 1)
	require.Len(t, reg.Rows[0], 2)

	cmd, ok := c.Resolve(MenuRegistration, "Parent")
	require.True(t, ok)
	require.Equal(t, CmdRegister, cmd.Kind)
	require.Equal(t, int64(1), cmd.RoleID)

	require.Equal(t, int64(10), c.MainMenus[1])
	require.Equal(t, "Teacher", c.RoleNames[2])
}

func TestCompileSubscribeLabels(t *testing.T) {
	c := Compile(testRoles(), testMenus(), CompileOptions{Mode: DispatchLabel, ButtonsPerRow: 2})

	on, ok := c.Resolve(10, "Subscribe")
	require.True(t, ok)
	require.Equal(t, CmdSubscribe, on.Kind)
	off, ok := c.Resolve(10, "Unsubscribe")
	require.True(t, ok)
	require.Equal(t, on, off)

	menu := c.Menu(10)
	subscribedView := menu.View(true)
	plainView := menu.View(false)
	require.Equal(t, "Subscribe", plainView.Rows[1][0].Label)
	require.Equal(t, "Unsubscribe", subscribedView.Rows[1][0].Label)
}

func TestCompileTokenDispatch(t *testing.T) {
	c := Compile(testRoles(), testMenus(), CompileOptions{Mode: DispatchToken, ButtonsPerRow: 2})

	cmd, ok := c.Resolve(10, Token(CmdSubmenu, 11))
	require.True(t, ok)
	require.Equal(t, CmdSubmenu, cmd.Kind)
	require.Equal(t, int64(11), cmd.TargetMenu)

	// Labels are not dispatch keys in token mode.
	_, ok = c.Resolve(10, "Schedule")
	require.False(t, ok)

	_, ok = c.Resolve(MenuRegistration, Token(CmdRegister, 2))
	require.True(t, ok)

	kind, id, ok := ParseToken(Token(CmdInfo, 2))
	require.True(t, ok)
	require.Equal(t, CmdInfo, kind)
	require.Equal(t, int64(2), id)
	_, _, ok = ParseToken("garbage")
	require.False(t, ok)
}

func TestCompileAdminMenus(t *testing.T) {
	c := Compile(testRoles(), testMenus(), CompileOptions{Mode: DispatchLabel, ButtonsPerRow: 2})

	for menuID, want := range map[int64]struct {
		label string
		kind  CommandKind
	}{
		MenuAdminMain:         {LabelAdminAnswer, CmdAdminAnswer},
		MenuAdminAnswer:       {LabelAdminBlock, CmdAdminBlock},
		MenuAdminConfirmBlock: {LabelAdminConfirm, CmdAdminConfirm},
		MenuAskAdmin:          {LabelCancel, CmdCancel},
	} {
		require.NotNil(t, c.Menu(menuID), "menu %d", menuID)
		cmd, ok := c.Resolve(menuID, want.label)
		require.True(t, ok, "menu %d label %s", menuID, want.label)
		require.Equal(t, want.kind, cmd.Kind)
	}
}
