package relay

import (
	"context"
	"testing"

	"community-hub/domain"
	"community-hub/transport"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type nopSink struct {
}

func (s nopSink) Consume(ctx context.Context, f transport.Frame) error {
	return nil
}

func TestRegistry_Subscribe_One_Community_One_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sessionID := uuid.NewString()
	communityID := domain.CommunityID("cs-101")
	sink := nopSink{}

	// Given no session is connected
	// And no community exists
	req.Empty(registry.sessions)
	req.Empty(registry.communityMembers)

	// When a session subscribes a community
	registry.Subscribe(sessionID, communityID, sink)

	// Then
	req.Len(registry.sessions, 1)
	req.Equal(sink, registry.sessions[sessionID])

	req.Len(registry.communityMembers, 1)
	req.Contains(registry.communityMembers[communityID], sessionID)

	req.Len(registry.GetSinksForCommunity(communityID), 1)
	req.Contains(registry.GetSinksForCommunity(communityID), sink)
}

func TestRegistry_Subscribe_One_Community_Multiple_Sessions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sessionID1 := uuid.NewString()
	sessionID2 := uuid.NewString()
	communityID := domain.CommunityID("cs-101")
	sink1 := nopSink{}
	sink2 := nopSink{}

	// When sessions subscribe a community
	registry.Subscribe(sessionID1, communityID, sink1)
	registry.Subscribe(sessionID2, communityID, sink2)

	// Then
	req.Len(registry.sessions, 2)
	req.Len(registry.communityMembers[communityID], 2)

	req.Len(registry.GetSinksForCommunity(communityID), 2)
	req.Contains(registry.GetSinksForCommunity(communityID), sink1)
}

func TestRegistry_Unsubscribe_One_Community_One_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sessionID := uuid.NewString()
	communityID := domain.CommunityID("cs-101")
	sink := nopSink{}

	// Given a session subscribes a community
	registry.Subscribe(sessionID, communityID, sink)

	// When the session unsubscribes the community
	registry.Unsubscribe(sessionID, communityID)

	// Then no session left
	// And the community doesn't exist anymore
	req.Empty(registry.sessions)
	req.Empty(registry.communityMembers)

	// And no session connected left in the community
	req.Nil(registry.GetSinksForCommunity(communityID))
}

func TestRegistry_Unsubscribe_One_Community_Multiple_Sessions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sessionID1 := uuid.NewString()
	sessionID2 := uuid.NewString()
	communityID := domain.CommunityID("cs-101")
	sink1 := nopSink{}
	sink2 := nopSink{}

	// When sessions subscribe a community
	registry.Subscribe(sessionID1, communityID, sink1)
	registry.Subscribe(sessionID2, communityID, sink2)

	// When one session unsubscribes the community
	registry.Unsubscribe(sessionID1, communityID)

	// Then only one session left
	req.Len(registry.sessions, 1)
	req.Len(registry.communityMembers[communityID], 1)

	req.Len(registry.GetSinksForCommunity(communityID), 1)
	req.Contains(registry.GetSinksForCommunity(communityID), sink2)
}

func TestRegistry_Detach_Keeps_Session_Connected(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sessionID := uuid.NewString()
	first := domain.CommunityID("cs-101")
	second := domain.CommunityID("math-202")
	sink := nopSink{}

	// Given a session subscribed to a community
	registry.Subscribe(sessionID, first, sink)

	// When the session detaches to switch communities
	registry.Detach(sessionID, first)
	registry.Subscribe(sessionID, second, sink)

	// Then the session is still connected, only its community changed
	req.Len(registry.sessions, 1)
	req.Nil(registry.GetSinksForCommunity(first))
	req.Contains(registry.GetSinksForCommunity(second), sink)
}

func TestRegistry_Counts(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	sessions, communities := registry.Counts()
	req.Zero(sessions)
	req.Zero(communities)

	// A connected session counts even before joining anything
	idle := uuid.NewString()
	registry.Register(idle, nopSink{})

	registry.Subscribe(uuid.NewString(), domain.CommunityID("cs-101"), nopSink{})
	registry.Subscribe(uuid.NewString(), domain.CommunityID("cs-101"), nopSink{})
	registry.Subscribe(uuid.NewString(), domain.CommunityID("math-202"), nopSink{})

	sessions, communities = registry.Counts()
	req.Equal(4, sessions)
	req.Equal(2, communities)

	registry.Unsubscribe(idle, "")
	sessions, _ = registry.Counts()
	req.Equal(3, sessions)
}
