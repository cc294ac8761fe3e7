package relay

import (
	"sync"

	"community-hub/contract"
	"community-hub/domain"
)

type Set map[string]struct{}

// Registry tracks which connected sessions listen to which community.
type Registry struct {
	mu               sync.RWMutex
	sessions         map[string]contract.EventSink // map session -> Sink
	communityMembers map[domain.CommunityID]Set    // map community to sessions
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:         make(map[string]contract.EventSink),
		communityMembers: make(map[domain.CommunityID]Set),
	}
}

// Register adds a connected session that has not joined any community yet,
// so gauges see it between connect and first join.
func (r *Registry) Register(sessionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = sink
}

// GetSinksForCommunity retrieves all active communication channels for a
// specific community. It performs a two-step lookup:
// 1. Identifies session IDs associated with the community via communityMembers.
// 2. Resolves those IDs into actual EventSinks using the sessions map.
//
// Returns nil if the community doesn't exist or has no members.
func (r *Registry) GetSinksForCommunity(id domain.CommunityID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.communityMembers[id]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for sessionID := range members {
		if sink, exists := r.sessions[sessionID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers a session's active connection and assigns it to a
// specific community. If the community does not yet exist in the registry,
// it is initialized on the fly.
func (r *Registry) Subscribe(sessionID string, id domain.CommunityID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = sink

	if _, ok := r.communityMembers[id]; !ok {
		r.communityMembers[id] = make(Set)
	}
	r.communityMembers[id][sessionID] = struct{}{}
}

// Unsubscribe removes a session from the registry and its current community.
// It cleans up the session and ensures no empty sets are left in the
// community map to prevent memory leaks over time.
func (r *Registry) Unsubscribe(sessionID string, id domain.CommunityID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)

	if members, ok := r.communityMembers[id]; ok {
		delete(members, sessionID)

		// If no one is left in the community, remove the entry entirely
		if len(members) == 0 {
			delete(r.communityMembers, id)
		}
	}
}

// Detach removes a session from its community without dropping the session
// sink, used when a client switches to another community on the same
// connection.
func (r *Registry) Detach(sessionID string, id domain.CommunityID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.communityMembers[id]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.communityMembers, id)
		}
	}
}

// Counts reports the current gauges: connected sessions and communities with
// at least one member.
func (r *Registry) Counts() (sessions, communities int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.communityMembers)
}
