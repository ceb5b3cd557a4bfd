package room

import (
	"cmp"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

var (
	ErrAlreadyJoined = errors.New("account already joined")
	ErrRoomFull      = errors.New("room is full")
	ErrInvalidMember = errors.New("invalid member")
)

// SettingsFunc resolves the settings for a room the first time it is used
type SettingsFunc func(roomID string) Settings

// Room holds the live members of one room
type Room struct {
	id       string
	settings Settings
	members  map[string]*Member
	chat     *ChatLog
	mu       sync.RWMutex
}

// Registry maps room identifiers to rooms
type Registry struct {
	rooms    map[string]*Room
	settings SettingsFunc
	now      func() time.Time
	mu       sync.RWMutex
}

// Option configures a Registry
type Option func(*Registry)

// WithSettings sets how room settings are resolved
func WithSettings(fn SettingsFunc) Option {
	return func(r *Registry) {
		if fn != nil {
			r.settings = fn
		}
	}
}

// WithClock overrides the time source used for join timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:    make(map[string]*Room),
		settings: func(string) Settings { return DefaultSettings() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join inserts a member and returns the full member list including it.
// The insert and the returned list are taken under the same lock.
func (r *Registry) Join(roomID string, m Member) ([]Member, error) {
	if roomID == "" || m.AccountID == "" {
		return nil, ErrInvalidMember
	}

	rm := r.getOrCreate(roomID)

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.members[m.AccountID]; exists {
		return nil, ErrAlreadyJoined
	}
	if rm.settings.MaxMembers > 0 && len(rm.members) >= rm.settings.MaxMembers {
		return nil, ErrRoomFull
	}

	if m.JoinedAt.IsZero() {
		m.JoinedAt = r.now()
	}
	rm.members[m.AccountID] = &m

	return rm.snapshotLocked(), nil
}

// Leave removes an account from a room. It returns the removed record and
// whether anything was removed; leaving twice is not an error.
func (r *Registry) Leave(roomID, accountID string) (Member, bool) {
	rm := r.get(roomID)
	if rm == nil {
		return Member{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, exists := rm.members[accountID]
	if !exists {
		return Member{}, false
	}
	delete(rm.members, accountID)
	return *m, true
}

// UpdatePosition moves a member in place. Unknown accounts are ignored so a
// late move can never resurrect a member.
func (r *Registry) UpdatePosition(roomID, accountID string, pos Position, facing Facing) (Member, bool) {
	rm := r.get(roomID)
	if rm == nil {
		return Member{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	m, exists := rm.members[accountID]
	if !exists {
		return Member{}, false
	}
	m.Position = pos
	m.Facing = facing
	return *m, true
}

// Member returns a copy of one member record
func (r *Registry) Member(roomID, accountID string) (Member, bool) {
	rm := r.get(roomID)
	if rm == nil {
		return Member{}, false
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	m, exists := rm.members[accountID]
	if !exists {
		return Member{}, false
	}
	return *m, true
}

// Snapshot returns a point-in-time copy of a room's members ordered by join time
func (r *Registry) Snapshot(roomID string) []Member {
	rm := r.get(roomID)
	if rm == nil {
		return []Member{}
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.snapshotLocked()
}

// Count returns the number of members in a room
func (r *Registry) Count(roomID string) int {
	rm := r.get(roomID)
	if rm == nil {
		return 0
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// Rooms returns the identifiers of every room that has been used
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Settings returns the settings a room runs with
func (r *Registry) Settings(roomID string) Settings {
	if rm := r.get(roomID); rm != nil {
		return rm.settings
	}
	return r.settings(roomID)
}

// AppendChat records a chat line in the room's recent history
func (r *Registry) AppendChat(roomID string, msg ChatMessage) {
	rm := r.getOrCreate(roomID)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.chat.Append(msg)
}

// RecentChat returns the room's buffered chat, oldest first
func (r *Registry) RecentChat(roomID string) []ChatMessage {
	rm := r.get(roomID)
	if rm == nil {
		return []ChatMessage{}
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.chat.Messages()
}

func (r *Registry) get(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID string) *Room {
	if rm := r.get(roomID); rm != nil {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if rm, exists := r.rooms[roomID]; exists {
		return rm
	}

	settings := r.settings(roomID)
	rm := &Room{
		id:       roomID,
		settings: settings,
		members:  make(map[string]*Member),
		chat:     NewChatLog(settings.ChatHistory),
	}
	r.rooms[roomID] = rm
	return rm
}

func (rm *Room) snapshotLocked() []Member {
	out := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Member) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.AccountID, b.AccountID)
	})
	return out
}
