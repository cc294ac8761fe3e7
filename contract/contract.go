//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"community-hub/chatclient"
	"community-hub/domain"
	"community-hub/search"
	"community-hub/transport"
)

// ChatClient is the connection surface presentation code drives. It is
// satisfied by *chatclient.Client.
type ChatClient interface {
	Connect()
	Disconnect()
	Reconnect()
	JoinCommunity(id domain.CommunityID)
	LeaveCommunity()
	Send(req domain.SendRequest) *chatclient.SendReceipt
	Status() domain.ConnectionStatus
	ActiveCommunity() (domain.CommunityID, bool)
	Stats() chatclient.Stats
	OnStatusChange(fn func(chatclient.StatusChange)) *chatclient.Subscription
	OnMessage(fn func(domain.Message)) *chatclient.Subscription
	OnError(fn func(error)) *chatclient.Subscription
	OnPresence(fn func(chatclient.Presence)) *chatclient.Subscription
	OnHistory(fn func(chatclient.History)) *chatclient.Subscription
	Close() error
}

// MessageStore persists community messages and serves the history read path,
// newest first, paginated with a before-timestamp cursor.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) error
	History(ctx context.Context, id domain.CommunityID, limit int, before time.Time) ([]domain.Message, error)
}

// Searcher indexes messages and answers full-text queries.
type Searcher interface {
	Index(ctx context.Context, msg domain.Message) error
	Search(ctx context.Context, q search.Query) ([]domain.Message, error)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives the frames fanned out to one connected session.
type EventSink interface {
	Consume(ctx context.Context, f transport.Frame) error
}

// IRegistry tracks which sessions listen to which community.
type IRegistry interface {
	GetSinksForCommunity(id domain.CommunityID) []EventSink
	Subscribe(sessionID string, id domain.CommunityID, sink EventSink)
	Unsubscribe(sessionID string, id domain.CommunityID)
}

// IUserStore persists account records for the relay login path.
type IUserStore interface {
	CreateUser(email, displayName, hashedPassword string) (string, error)
	GetUserByEmail(email string) (domain.User, error)
}
