package engine

// Entry is one compiled keyboard slot. Subscribe entries carry two
// labels; the rendered one depends on the user's current membership, so
// the choice is deferred to View.
type Entry struct {
	Label     string
	OffLabel  string
	Subscribe bool
	Token     string
}

// Menu is the compiled, platform-independent keyboard of one menu node.
type Menu struct {
	ID   int64
	Name string
	Rows [][]Entry
}

// KeyButton is one resolved keyboard slot ready for transport rendering.
type KeyButton struct {
	Label string
	Token string
}

// MenuView resolves a Menu for one user. Built inside a locked engine
// step so the membership check and the label choice are a single
// atomic decision.
type MenuView struct {
	ID   int64
	Rows [][]KeyButton
}

// View resolves subscribe labels against the user's membership.
func (m *Menu) View(subscribed bool) *MenuView {
	view := &MenuView{ID: m.ID, Rows: make([][]KeyButton, 0, len(m.Rows))}
	for _, row := range m.Rows {
		out := make([]KeyButton, 0, len(row))
		for _, e := range row {
			label := e.Label
			if e.Subscribe && subscribed && e.OffLabel != "" {
				label = e.OffLabel
			}
			out = append(out, KeyButton{Label: label, Token: e.Token})
		}
		view.Rows = append(view.Rows, out)
	}
	return view
}
