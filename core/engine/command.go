package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind enumerates the abstract commands the compiler can emit.
type CommandKind string

const (
	CmdMainMenu     CommandKind = "main_menu"
	CmdSubmenu      CommandKind = "submenu"
	CmdInfo         CommandKind = "info"
	CmdSubscribe    CommandKind = "subscribe"
	CmdReminder     CommandKind = "reminder"
	CmdAskAdmin     CommandKind = "ask_admin"
	CmdRegister     CommandKind = "register"
	CmdCancel       CommandKind = "cancel"
	CmdAdminAnswer  CommandKind = "admin_answer"
	CmdAdminBlock   CommandKind = "admin_block"
	CmdAdminConfirm CommandKind = "admin_confirm"
	CmdAdminCancel  CommandKind = "admin_cancel"
	// CmdNoop backs the sentinel entry of an empty menu.
	CmdNoop CommandKind = "noop"
)

// Command is one dispatchable action resolved from user input.
type Command struct {
	Kind CommandKind
	// Button carries the originating button for button-derived commands.
	Button *Button
	// TargetMenu is the destination for submenu and main-menu commands.
	TargetMenu int64
	// RoleID is set for register commands.
	RoleID int64
}

// DispatchMode selects how user input is keyed against the command table.
type DispatchMode int

const (
	// DispatchLabel keys commands by the visible button label (Telegram).
	DispatchLabel DispatchMode = iota
	// DispatchToken keys commands by the callback token (VK).
	DispatchToken
)

// Token builds the callback token for a command kind and identifier,
// the form carried inside callback payloads.
func Token(kind CommandKind, id int64) string {
	return fmt.Sprintf("%s#%d", kind, id)
}

// ParseToken splits a callback token back into kind and identifier.
func ParseToken(token string) (CommandKind, int64, bool) {
	kind, raw, ok := strings.Cut(token, "#")
	if !ok || kind == "" {
		return "", 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return CommandKind(kind), id, true
}

// Compiled is the full output of one compilation run: keyboards plus
// command tables per menu, and the role lookup tables the state machine
// needs to place users.
type Compiled struct {
	Menus    map[int64]*Menu
	Commands map[int64]map[string]Command
	// MainMenus maps role id to its root menu id.
	MainMenus map[int64]int64
	RoleNames map[int64]string
}

// Menu returns the compiled menu or nil when absent.
func (c *Compiled) Menu(menuID int64) *Menu {
	if c == nil {
		return nil
	}
	return c.Menus[menuID]
}

// Resolve looks up the command for the given input in the given menu.
func (c *Compiled) Resolve(menuID int64, input string) (Command, bool) {
	if c == nil {
		return Command{}, false
	}
	table, ok := c.Commands[menuID]
	if !ok {
		return Command{}, false
	}
	cmd, ok := table[input]
	return cmd, ok
}
