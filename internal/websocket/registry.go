package websocket

import (
	"sort"
	"sync"
)

// Handle is one live connection as seen by the registry and dispatcher.
// Send must not block: it either enqueues the frame or returns an error.
type Handle interface {
	ID() string
	Send(message *Message) error
	IsOpen() bool
}

// TransitionKind says which way the registry changed
type TransitionKind int

const (
	TransitionBound TransitionKind = iota
	TransitionUnbound
)

func (k TransitionKind) String() string {
	if k == TransitionBound {
		return "bound"
	}
	return "unbound"
}

// Transition describes one committed registry mutation
type Transition struct {
	Kind     TransitionKind
	UserID   string
	HandleID string
}

// TransitionListener is called after a mutation commits, outside the registry lock
type TransitionListener func(Transition)

// Registry maps users to their live handles. A handle is bound to at most
// one user at a time; byHandle is the reverse index used for O(1) unbind.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]Handle
	byHandle map[string]string

	listenersMu sync.RWMutex
	listeners   []TransitionListener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]map[string]Handle),
		byHandle: make(map[string]string),
	}
}

// OnTransition registers a listener for committed bind/unbind transitions
func (r *Registry) OnTransition(fn TransitionListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Bind registers h under userID and reports whether the registry changed.
// Binding the same handle to the same user again is a no-op. Binding it to a
// different user moves it.
func (r *Registry) Bind(userID string, h Handle) bool {
	if userID == "" || h == nil {
		return false
	}
	id := h.ID()

	r.mu.Lock()
	if prev, ok := r.byHandle[id]; ok {
		if prev == userID {
			r.mu.Unlock()
			return false
		}
		r.removeLocked(prev, id)
	}

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]Handle)
		r.byUser[userID] = set
	}
	set[id] = h
	r.byHandle[id] = userID
	r.mu.Unlock()

	r.emit(Transition{Kind: TransitionBound, UserID: userID, HandleID: id})
	return true
}

// Unbind removes h from whichever user holds it. Unknown handles are a no-op.
func (r *Registry) Unbind(h Handle) bool {
	if h == nil {
		return false
	}
	return r.UnbindID(h.ID())
}

// UnbindID is Unbind keyed by handle id
func (r *Registry) UnbindID(handleID string) bool {
	r.mu.Lock()
	userID, ok := r.byHandle[handleID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(userID, handleID)
	r.mu.Unlock()

	r.emit(Transition{Kind: TransitionUnbound, UserID: userID, HandleID: handleID})
	return true
}

func (r *Registry) removeLocked(userID, handleID string) {
	delete(r.byHandle, handleID)
	if set, ok := r.byUser[userID]; ok {
		delete(set, handleID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

func (r *Registry) emit(t Transition) {
	r.listenersMu.RLock()
	listeners := make([]TransitionListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(t)
	}
}

// Lookup returns a snapshot of the handles bound to userID
func (r *Registry) Lookup(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	handles := make([]Handle, 0, len(set))
	for _, h := range set {
		handles = append(handles, h)
	}
	return handles
}

// Handles returns a snapshot of every bound handle
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.byHandle))
	for _, set := range r.byUser {
		for _, h := range set {
			handles = append(handles, h)
		}
	}
	return handles
}

// OnlineUserCount is the number of users with at least one bound handle
func (r *Registry) OnlineUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// HandleCount is the number of bound handles across all users
func (r *Registry) HandleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}

// ConnectionCount returns the number of handles bound to userID
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// IsOnline checks if a user has any bound handle
func (r *Registry) IsOnline(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

// userOf returns the user a handle is bound to
func (r *Registry) userOf(handleID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byHandle[handleID]
	return userID, ok
}

// OnlineUsers returns the sorted ids of every online user
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}
