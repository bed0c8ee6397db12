package engine

import "sync"

// SubscriptionRegistry mirrors the subscribed-user sets per role. The
// store remains the source of truth; the registry is reseeded at start
// and on every sync cycle, and updated only after the store write
// succeeded so a failed write never leaves a phantom member.
type SubscriptionRegistry struct {
	mu   sync.Mutex
	sets map[int64]map[int64]struct{}
}

// NewSubscriptionRegistry returns an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{sets: make(map[int64]map[int64]struct{})}
}

// Seed replaces the full registry content with store data.
func (r *SubscriptionRegistry) Seed(subscribers map[int64][]int64) {
	sets := make(map[int64]map[int64]struct{}, len(subscribers))
	for roleID, ids := range subscribers {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		sets[roleID] = set
	}
	r.mu.Lock()
	r.sets = sets
	r.mu.Unlock()
}

// IsSubscribed reports membership of a platform identifier in a role set.
func (r *SubscriptionRegistry) IsSubscribed(roleID, platformID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[roleID]
	if !ok {
		return false
	}
	_, member := set[platformID]
	return member
}

// Subscribe adds the user to the role set.
func (r *SubscriptionRegistry) Subscribe(roleID, platformID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[roleID]
	if !ok {
		set = make(map[int64]struct{})
		r.sets[roleID] = set
	}
	if _, member := set[platformID]; member {
		return ErrAlreadySubscribed
	}
	set[platformID] = struct{}{}
	return nil
}

// Unsubscribe removes the user from the role set.
func (r *SubscriptionRegistry) Unsubscribe(roleID, platformID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[roleID]
	if !ok {
		return ErrNotSubscribed
	}
	if _, member := set[platformID]; !member {
		return ErrNotSubscribed
	}
	delete(set, platformID)
	return nil
}

// Move transfers membership between role sets in one registry step. A
// user subscribed under the old role stays subscribed under the new one;
// a non-member stays a non-member.
func (r *SubscriptionRegistry) Move(oldRoleID, newRoleID, platformID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.sets[oldRoleID]
	if !ok {
		return
	}
	if _, member := old[platformID]; !member {
		return
	}
	delete(old, platformID)
	set, ok := r.sets[newRoleID]
	if !ok {
		set = make(map[int64]struct{})
		r.sets[newRoleID] = set
	}
	set[platformID] = struct{}{}
}

// Count returns the total number of subscribed users across roles.
func (r *SubscriptionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, set := range r.sets {
		total += len(set)
	}
	return total
}
