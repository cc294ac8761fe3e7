package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"community-hub/contract"
	"community-hub/domain"
	"community-hub/moderation"
	"community-hub/observability"
	"community-hub/search"
	"community-hub/transport"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

// Community identifiers become key segments in storage, so the charset is
// restricted up front.
var communityIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

var (
	ErrInvalidCommunity = errors.New("invalid community id")
	ErrNotJoined        = errors.New("session has not joined this community")
	ErrInvalidMessage   = errors.New("invalid message")
)

// Service owns the relay-side chat semantics: membership, message intake,
// history, and search. Membership methods are called from each connection's
// read loop, which is the single writer of its session's Community field.
type Service struct {
	log        *slog.Logger
	registry   *Registry
	store      contract.MessageStore
	searcher   contract.Searcher
	moderator  *moderation.Moderator
	monitoring *observability.MonitoringManager

	// indexFeed decouples indexing latency from the post path; the indexer
	// worker drains it.
	indexFeed    chan<- domain.Message
	historyLimit int
}

func NewService(
	log *slog.Logger,
	registry *Registry,
	store contract.MessageStore,
	searcher contract.Searcher,
	moderator *moderation.Moderator,
	monitoring *observability.MonitoringManager,
	indexFeed chan<- domain.Message,
	historyLimit int,
) *Service {
	return &Service{
		log:          log,
		registry:     registry,
		store:        store,
		searcher:     searcher,
		moderator:    moderator,
		monitoring:   monitoring,
		indexFeed:    indexFeed,
		historyLimit: historyLimit,
	}
}

// Connect registers a freshly accepted session so it shows up in the gauges
// before its first join.
func (s *Service) Connect(session *Session) {
	s.registry.Register(session.ID, session)
	s.monitoring.UpdateSessions(s.registry.Counts())
}

// Join subscribes the session to a community, announces it, and replays the
// recent history to the joining session only. A session already in another
// community is switched over.
func (s *Service) Join(ctx context.Context, session *Session, id domain.CommunityID) error {
	if !communityIDPattern.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidCommunity, id)
	}

	if session.Community == id {
		return nil
	}
	if session.Community != "" {
		s.leaveCurrent(ctx, session)
	}

	s.registry.Subscribe(session.ID, id, session)
	session.Community = id
	s.monitoring.UpdateSessions(s.registry.Counts())

	s.announcePresence(ctx, id, session, true)

	messages, err := s.store.History(ctx, id, s.historyLimit, time.Time{})
	if err != nil {
		return fmt.Errorf("load history for %s: %w", id, err)
	}
	// The store hands back newest first, the frame carries oldest first
	frame, err := transport.NewHistoryFrame(id, lo.Reverse(messages))
	if err != nil {
		return err
	}
	return session.Consume(ctx, frame)
}

// Leave detaches the session from its community while keeping the
// connection open.
func (s *Service) Leave(ctx context.Context, session *Session) error {
	if session.Community == "" {
		return ErrNotJoined
	}
	s.leaveCurrent(ctx, session)
	s.monitoring.UpdateSessions(s.registry.Counts())
	return nil
}

func (s *Service) leaveCurrent(ctx context.Context, session *Session) {
	id := session.Community
	s.registry.Detach(session.ID, id)
	session.Community = ""
	s.announcePresence(ctx, id, session, false)
}

// Post accepts a message for the session's community, stores it, fans it
// out to every member, and feeds the index.
func (s *Service) Post(ctx context.Context, session *Session, req domain.SendRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if session.Community == "" || session.Community != req.CommunityID {
		return ErrNotJoined
	}

	censored, foundWords := s.moderator.Censor(req.Text)

	now := time.Now().UTC()
	msg := domain.Message{
		ID:          uuid.New(),
		CommunityID: req.CommunityID,
		AuthorID:    session.UserID,
		DisplayName: session.DisplayName,
		Text:        censored,
		Images:      req.Images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Append(ctx, msg); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	s.monitoring.IncrMessageIn()
	if len(foundWords) > 0 {
		s.monitoring.IncrCensored()
		s.log.Debug("Message censored",
			slog.String("message_id", msg.ID.String()),
			slog.Int("words", len(foundWords)))
	}
	s.monitoring.AddRecent(observability.RecentMessageInfo{
		ID:        msg.ID.String(),
		Community: string(msg.CommunityID),
		Author:    msg.DisplayName,
		Censored:  len(foundWords) > 0,
		Timestamp: msg.CreatedAt,
	})

	frame, err := transport.NewMessageFrame(msg)
	if err != nil {
		return err
	}
	s.fanout(ctx, msg.CommunityID, frame)

	select {
	case s.indexFeed <- msg:
	default:
		s.log.Warn("Index feed full, message not indexed", slog.String("message_id", msg.ID.String()))
	}
	return nil
}

// Disconnect removes the session from the registry and stops its writer.
// Called once when the connection's read loop ends, whatever the cause.
func (s *Service) Disconnect(ctx context.Context, session *Session) {
	if session.Community != "" {
		id := session.Community
		s.registry.Unsubscribe(session.ID, id)
		session.Community = ""
		s.announcePresence(ctx, id, session, false)
	} else {
		s.registry.Unsubscribe(session.ID, "")
	}
	s.monitoring.UpdateSessions(s.registry.Counts())
	session.Close()
}

// History serves the read path of the REST API. A zero before means from
// the latest message; results come back newest first.
func (s *Service) History(ctx context.Context, id domain.CommunityID, limit int, before time.Time) ([]domain.Message, error) {
	if !communityIDPattern.MatchString(string(id)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommunity, id)
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.store.History(ctx, id, limit, before)
}

// SearchMessages runs a /find style query against the index.
func (s *Service) SearchMessages(ctx context.Context, q search.Query) ([]domain.Message, error) {
	return s.searcher.Search(ctx, q)
}

// Stats exposes the latest monitoring snapshot.
func (s *Service) Stats() observability.MonitoringStats {
	return s.monitoring.GetLatest()
}

func (s *Service) announcePresence(ctx context.Context, id domain.CommunityID, session *Session, joined bool) {
	frame, err := transport.NewPresenceFrame(transport.PresencePayload{
		CommunityID: id,
		UserID:      session.UserID,
		DisplayName: session.DisplayName,
		Joined:      joined,
	})
	if err != nil {
		s.log.Warn("Presence frame failed", slog.String("error", err.Error()))
		return
	}
	s.fanout(ctx, id, frame)
}

// fanout hands the frame to every member's buffer. Deliveries counts the
// handoffs; sessions count their own drops.
func (s *Service) fanout(ctx context.Context, id domain.CommunityID, frame transport.Frame) {
	sinks := s.registry.GetSinksForCommunity(id)
	for _, sink := range sinks {
		_ = sink.Consume(ctx, frame)
	}
	s.monitoring.IncrDeliveries(uint64(len(sinks)))
}
