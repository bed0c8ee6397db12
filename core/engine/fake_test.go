package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used across the engine tests.
type fakeStore struct {
	mu      sync.Mutex
	roles   []Role
	menus   []MenuNode
	users   map[int64]*User
	nextUID int64

	questions map[int64]*Question
	nextQID   int64

	tickets map[int64]*Ticket
	nextTID int64

	admins map[Platform][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roles:     testRoles(),
		menus:     testMenus(),
		users:     make(map[int64]*User),
		questions: make(map[int64]*Question),
		tickets:   make(map[int64]*Ticket),
		admins:    make(map[Platform][]int64),
	}
}

func (s *fakeStore) Roles(context.Context) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Role(nil), s.roles...), nil
}

func (s *fakeStore) Menus(context.Context) ([]MenuNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MenuNode(nil), s.menus...), nil
}

func (s *fakeStore) Users(_ context.Context, platform Platform) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []User
	for _, u := range s.users {
		if u.Platform == platform {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeStore) UserByPlatformID(_ context.Context, platform Platform, platformID int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Platform == platform && u.PlatformID == platformID {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *fakeStore) CreateUser(_ context.Context, platform Platform, platformID, roleID int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Platform == platform && u.PlatformID == platformID {
			return User{}, fmt.Errorf("duplicate user %s/%d", platform, platformID)
		}
	}
	s.nextUID++
	u := &User{ID: s.nextUID, Platform: platform, PlatformID: platformID, RoleID: roleID}
	s.users[u.ID] = u
	return *u, nil
}

func (s *fakeStore) ChangeRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RoleID = roleID
	return nil
}

func (s *fakeStore) BlockUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsBlocked = true
	u.IsSubscribed = false
	for id, q := range s.questions {
		if q.UserID == userID {
			delete(s.questions, id)
		}
	}
	return nil
}

func (s *fakeStore) Subscribers(_ context.Context, platform Platform) (map[int64][]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]int64)
	for _, u := range s.users {
		if u.Platform == platform && u.IsSubscribed && !u.IsBlocked {
			out[u.RoleID] = append(out[u.RoleID], u.PlatformID)
		}
	}
	return out, nil
}

func (s *fakeStore) SetSubscribed(_ context.Context, userID int64, subscribed bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.IsSubscribed = subscribed
	if subscribed {
		u.SubscribedAt = &at
	} else {
		u.SubscribedAt = nil
	}
	return nil
}

func (s *fakeStore) AdminIDs(_ context.Context, platform Platform) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.admins[platform]...), nil
}

func (s *fakeStore) AddQuestion(_ context.Context, userID int64, text string) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return Question{}, ErrNotFound
	}
	s.nextQID++
	q := &Question{
		ID:         s.nextQID,
		UserID:     userID,
		PlatformID: u.PlatformID,
		Text:       text,
		CreatedAt:  time.Now().Add(time.Duration(s.nextQID) * time.Millisecond),
	}
	s.questions[q.ID] = q
	return *q, nil
}

func (s *fakeStore) OpenQuestion(context.Context) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *Question
	for _, q := range s.questions {
		if !q.Open() {
			continue
		}
		if oldest == nil || q.CreatedAt.Before(oldest.CreatedAt) {
			oldest = q
		}
	}
	if oldest == nil {
		return Question{}, ErrNotFound
	}
	return *oldest, nil
}

func (s *fakeStore) AnswerQuestion(_ context.Context, questionID int64, answer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return ErrNotFound
	}
	q.Answer = answer
	q.AnsweredAt = &at
	return nil
}

func (s *fakeStore) AnsweredUndelivered(_ context.Context, platform Platform) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Question
	for _, q := range s.questions {
		owner := s.users[q.UserID]
		if owner == nil || owner.Platform != platform {
			continue
		}
		if q.AnsweredAt != nil && q.DeliveredAt == nil {
			out = append(out, *q)
		}
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, questionIDs []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range questionIDs {
		if q, ok := s.questions[id]; ok {
			q.DeliveredAt = &at
		}
	}
	return nil
}

func (s *fakeStore) PendingTickets(_ context.Context, platform Platform) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, t := range s.tickets {
		pending := false
		switch platform {
		case PlatformTelegram:
			pending = t.TelegramAt == nil
		case PlatformVK:
			pending = t.VKAt == nil
		}
		if pending {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

func (s *fakeStore) AcknowledgeTickets(_ context.Context, platform Platform, ticketIDs []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ticketIDs {
		t, ok := s.tickets[id]
		if !ok {
			continue
		}
		switch platform {
		case PlatformTelegram:
			t.TelegramAt = &at
		case PlatformVK:
			t.VKAt = &at
		}
	}
	return nil
}

// helpers for tests

func (s *fakeStore) addTicket() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTID++
	s.tickets[s.nextTID] = &Ticket{ID: s.nextTID, CreatedAt: time.Now()}
	return s.nextTID
}

func (s *fakeStore) addAdmin(platform Platform, platformID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[platform] = append(s.admins[platform], platformID)
}

func (s *fakeStore) userByPlatform(platform Platform, platformID int64) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Platform == platform && u.PlatformID == platformID {
			copied := *u
			return &copied
		}
	}
	return nil
}

func (s *fakeStore) question(id int64) *Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil
	}
	copied := *q
	return &copied
}

// removeRole drops a role together with its menu subtree, simulating an
// operator deleting the role in the management UI.
func (s *fakeStore) removeRole(roleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rootMenu int64
	roles := s.roles[:0]
	for _, r := range s.roles {
		if r.ID == roleID {
			rootMenu = r.MenuID
			continue
		}
		roles = append(roles, r)
	}
	s.roles = roles
	menus := s.menus[:0]
	for _, m := range s.menus {
		if m.ID == rootMenu || (m.ParentID != nil && *m.ParentID == rootMenu) {
			continue
		}
		menus = append(menus, m)
	}
	s.menus = menus
}

func (s *fakeStore) questionCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.questions {
		if q.UserID == userID {
			n++
		}
	}
	return n
}

// fakeTransport records outbound traffic.
type renderCall struct {
	PlatformID int64
	MenuID     int64
	Text       string
	View       *MenuView
}

type textCall struct {
	PlatformID int64
	Text       string
}

type docCall struct {
	PlatformID int64
	File       string
	Caption    string
}

type fakeTransport struct {
	mu      sync.Mutex
	renders []renderCall
	texts   []textCall
	docs    []docCall

	failText map[int64]bool
	failDocs bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failText: make(map[int64]bool)}
}

func (t *fakeTransport) Render(_ context.Context, platformID int64, view *MenuView, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renders = append(t.renders, renderCall{PlatformID: platformID, MenuID: view.ID, Text: text, View: view})
	return nil
}

func (t *fakeTransport) SendText(_ context.Context, platformID int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failText[platformID] {
		return fmt.Errorf("send rejected")
	}
	t.texts = append(t.texts, textCall{PlatformID: platformID, Text: text})
	return nil
}

func (t *fakeTransport) SendDocument(_ context.Context, platformID int64, file, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failDocs {
		return fmt.Errorf("upload rejected")
	}
	t.docs = append(t.docs, docCall{PlatformID: platformID, File: file, Caption: caption})
	return nil
}

func (t *fakeTransport) lastRender() *renderCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.renders) == 0 {
		return nil
	}
	call := t.renders[len(t.renders)-1]
	return &call
}

func (t *fakeTransport) lastText() *textCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.texts) == 0 {
		return nil
	}
	call := t.texts[len(t.texts)-1]
	return &call
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.renders) + len(t.texts) + len(t.docs)
}
