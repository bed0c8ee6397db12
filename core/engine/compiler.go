package engine

import (
	"sort"
	"strings"
)

// CompileOptions configures one compilation run.
type CompileOptions struct {
	Mode          DispatchMode
	ButtonsPerRow int
}

// DefaultButtonsPerRow is the keyboard row width used when the
// configuration does not override it.
const DefaultButtonsPerRow = 2

// Compile turns the stored menu tree and role list into keyboards and
// command tables. It is total and idempotent: the same input always
// yields a deeply equal result, regardless of input slice order.
func Compile(roles []Role, menus []MenuNode, opts CompileOptions) *Compiled {
	width := opts.ButtonsPerRow
	if width <= 0 {
		width = DefaultButtonsPerRow
	}

	c := &Compiled{
		Menus:     make(map[int64]*Menu, len(menus)+5),
		Commands:  make(map[int64]map[string]Command, len(menus)+5),
		MainMenus: make(map[int64]int64, len(roles)),
		RoleNames: make(map[int64]string, len(roles)),
	}

	sortedRoles := append([]Role(nil), roles...)
	sort.Slice(sortedRoles, func(i, j int) bool { return sortedRoles[i].ID < sortedRoles[j].ID })
	for _, r := range sortedRoles {
		c.MainMenus[r.ID] = r.MenuID
		c.RoleNames[r.ID] = r.Name
	}

	sortedMenus := append([]MenuNode(nil), menus...)
	sort.Slice(sortedMenus, func(i, j int) bool { return sortedMenus[i].ID < sortedMenus[j].ID })
	for _, node := range sortedMenus {
		compileNode(c, node, width, opts.Mode)
	}

	compileRegistration(c, sortedRoles, width, opts.Mode)
	compileAdminMenus(c, opts.Mode)

	return c
}

func compileNode(c *Compiled, node MenuNode, width int, mode DispatchMode) {
	menu := &Menu{ID: node.ID, Name: node.Name}
	table := make(map[string]Command)

	buttons := append([]Button(nil), node.Buttons...)
	sort.Slice(buttons, func(i, j int) bool {
		if buttons[i].Order != buttons[j].Order {
			return buttons[i].Order < buttons[j].Order
		}
		return buttons[i].ID < buttons[j].ID
	})

	var row []Entry
	for i := range buttons {
		entry, cmd, ok := compileButton(&buttons[i])
		if !ok {
			continue
		}
		bindCommand(table, mode, entry, cmd)
		row = append(row, entry)
		if len(row) == width {
			menu.Rows = append(menu.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		menu.Rows = append(menu.Rows, row)
	}

	if len(menu.Rows) == 0 {
		// A menu must never render as an empty keyboard.
		sentinel := Entry{Label: LabelNoButtons, Token: Token(CmdNoop, 0)}
		bindCommand(table, mode, sentinel, Command{Kind: CmdNoop})
		menu.Rows = [][]Entry{{sentinel}}
	}

	if !node.Root() {
		back := Entry{Label: LabelBackToMain, Token: Token(CmdMainMenu, 0)}
		bindCommand(table, mode, back, Command{Kind: CmdMainMenu})
		menu.Rows = append(menu.Rows, []Entry{back})
	}

	c.Menus[node.ID] = menu
	c.Commands[node.ID] = table
}

func compileButton(b *Button) (Entry, Command, bool) {
	switch b.Type {
	case ButtonSubmenu:
		return Entry{Label: b.Name, Token: Token(CmdSubmenu, b.ChildMenuID)},
			Command{Kind: CmdSubmenu, Button: b, TargetMenu: b.ChildMenuID}, true
	case ButtonInfo:
		return Entry{Label: b.Name, Token: Token(CmdInfo, b.ID)},
			Command{Kind: CmdInfo, Button: b}, true
	case ButtonSubscribe:
		label := b.OnLabel
		if label == "" {
			label = b.Name
		}
		return Entry{Label: label, OffLabel: b.OffLabel, Subscribe: true, Token: Token(CmdSubscribe, b.ID)},
			Command{Kind: CmdSubscribe, Button: b}, true
	case ButtonReminder:
		return Entry{Label: b.Name, Token: Token(CmdReminder, b.ID)},
			Command{Kind: CmdReminder, Button: b}, true
	case ButtonAskAdmin:
		return Entry{Label: b.Name, Token: Token(CmdAskAdmin, b.ID)},
			Command{Kind: CmdAskAdmin, Button: b}, true
	}
	return Entry{}, Command{}, false
}

// bindCommand registers the dispatch keys for one entry. Label dispatch
// binds every visible label of the entry; subscribe entries answer to
// both their on and off labels.
func bindCommand(table map[string]Command, mode DispatchMode, e Entry, cmd Command) {
	if mode == DispatchToken {
		table[e.Token] = cmd
		return
	}
	if label := strings.TrimSpace(e.Label); label != "" {
		table[label] = cmd
	}
	if off := strings.TrimSpace(e.OffLabel); off != "" {
		table[off] = cmd
	}
}

func compileRegistration(c *Compiled, roles []Role, width int, mode DispatchMode) {
	menu := &Menu{ID: MenuRegistration}
	table := make(map[string]Command)

	var row []Entry
	for _, r := range roles {
		entry := Entry{Label: r.Name, Token: Token(CmdRegister, r.ID)}
		bindCommand(table, mode, entry, Command{Kind: CmdRegister, RoleID: r.ID})
		row = append(row, entry)
		if len(row) == width {
			menu.Rows = append(menu.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		menu.Rows = append(menu.Rows, row)
	}
	if len(menu.Rows) == 0 {
		sentinel := Entry{Label: LabelNoButtons, Token: Token(CmdNoop, 0)}
		bindCommand(table, mode, sentinel, Command{Kind: CmdNoop})
		menu.Rows = [][]Entry{{sentinel}}
	}

	c.Menus[MenuRegistration] = menu
	c.Commands[MenuRegistration] = table
}

type staticButton struct {
	label string
	kind  CommandKind
}

// compileAdminMenus adds the static keyboards of the operator flow.
func compileAdminMenus(c *Compiled, mode DispatchMode) {
	static := map[int64][][]staticButton{
		MenuAdminMain: {
			{{LabelAdminAnswer, CmdAdminAnswer}},
		},
		MenuAdminAnswer: {
			{{LabelAdminBlock, CmdAdminBlock}},
			{{LabelCancel, CmdAdminCancel}},
		},
		MenuAdminConfirmBlock: {
			{{LabelAdminConfirm, CmdAdminConfirm}},
			{{LabelCancel, CmdAdminCancel}},
		},
		MenuAskAdmin: {
			{{LabelCancel, CmdCancel}},
		},
	}

	for menuID, rows := range static {
		menu := &Menu{ID: menuID}
		table := make(map[string]Command)
		for _, rowDef := range rows {
			var row []Entry
			for _, b := range rowDef {
				entry := Entry{Label: b.label, Token: Token(b.kind, 0)}
				bindCommand(table, mode, entry, Command{Kind: b.kind})
				row = append(row, entry)
			}
			menu.Rows = append(menu.Rows, row)
		}
		c.Menus[menuID] = menu
		c.Commands[menuID] = table
	}
}
