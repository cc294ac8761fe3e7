package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"community-hub/contract"
	"community-hub/domain"
	"community-hub/search"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
)

// BlugeSearcher maintains the full-text index over relayed messages and
// answers /find queries. It borrows the writer; the caller owns open and
// close. Each search opens a short-lived snapshot reader.
type BlugeSearcher struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewBlugeSearcher(writer *bluge.Writer, log *slog.Logger) contract.Searcher {
	return &BlugeSearcher{writer: writer, log: log}
}

// Index adds one message to the index. The whole message is carried as a
// stored-only JSON field so hits can be rebuilt without a second store
// lookup. The language is detected from the text at index time, which lets
// /find filter by language without any per-query detection cost.
func (s *BlugeSearcher) Index(_ context.Context, msg domain.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}

	var langCode string
	if msg.Text != "" {
		info := whatlanggo.Detect(msg.Text)
		langCode = info.Lang.Iso6391()
	}

	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("text", msg.Text).StoreValue()).
		AddField(bluge.NewKeywordField("community_id", string(msg.CommunityID))).
		AddField(bluge.NewKeywordField("author_id", msg.AuthorID)).
		AddField(bluge.NewKeywordField("lang", langCode)).
		AddField(bluge.NewDateTimeField("created_at", msg.CreatedAt).Sortable()).
		AddField(bluge.NewStoredOnlyField("raw", raw))

	return s.writer.Update(doc.ID(), doc)
}

// Search runs a structured query against the index and returns matching
// messages, most recent first.
func (s *BlugeSearcher) Search(ctx context.Context, q search.Query) ([]domain.Message, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer reader.Close()

	request := bluge.NewTopNSearch(q.Limit, buildQuery(q)).
		SortBy([]string{"-created_at"})

	dmi, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	var messages []domain.Message
	next, err := dmi.Next()
	for err == nil && next != nil {
		var msg domain.Message
		var decodeErr error
		err = next.VisitStoredFields(func(field string, value []byte) bool {
			if field == "raw" {
				decodeErr = json.Unmarshal(value, &msg)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		messages = append(messages, msg)
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// buildQuery translates the parsed /find parameters into a bluge query.
// Every present parameter becomes a mandatory clause; free text matches all
// of its words in any order.
func buildQuery(q search.Query) bluge.Query {
	if q.Terms == "" && q.CommunityID == "" && q.Author == "" && q.Lang == "" {
		return bluge.NewMatchAllQuery()
	}

	boolean := bluge.NewBooleanQuery()
	if q.Terms != "" {
		boolean.AddMust(bluge.NewMatchQuery(q.Terms).
			SetField("text").
			SetOperator(bluge.MatchQueryOperatorAnd))
	}
	if q.CommunityID != "" {
		boolean.AddMust(bluge.NewTermQuery(q.CommunityID).SetField("community_id"))
	}
	if q.Author != "" {
		boolean.AddMust(bluge.NewTermQuery(q.Author).SetField("author_id"))
	}
	if q.Lang != "" {
		boolean.AddMust(bluge.NewTermQuery(q.Lang).SetField("lang"))
	}
	return boolean
}
