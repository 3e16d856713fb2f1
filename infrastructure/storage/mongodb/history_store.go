package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

// historyDocument is the MongoDB document of one conversation. The history
// is kept as JSON text so argument and result maps round-trip unchanged.
type historyDocument struct {
	ID        string    `bson:"_id"`
	Steps     int       `bson:"steps"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// HistoryStore is a MongoDB-backed implementation of conversation.HistoryStore.
type HistoryStore struct {
	client       *Client
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewHistoryStore creates a history store over an open client. Closing the
// store disconnects the client.
func NewHistoryStore(client *Client) *HistoryStore {
	name := client.config.Collection
	if name == "" {
		name = DefaultConfig().Collection
	}
	return &HistoryStore{
		client:       client,
		collection:   client.Collection(name),
		queryTimeout: client.config.QueryTimeout,
	}
}

// Save stores the full history, replacing any previous version.
func (s *HistoryStore) Save(ctx context.Context, id string, m *conversation.Memory) error {
	if id == "" {
		return conversation.ErrConversationNotFound
	}
	doc, err := toDocument(id, m, time.Now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb save %s: %w", id, err)
	}
	return nil
}

// Load retrieves a history.
func (s *HistoryStore) Load(ctx context.Context, id string) (*conversation.Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc historyDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, conversation.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb load %s: %w", id, err)
	}
	return fromDocument(&doc)
}

// Delete removes a history.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb delete %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return conversation.ErrConversationNotFound
	}
	return nil
}

// List returns the stored conversation IDs in lexical order.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb list: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongodb list: %w", err)
	}
	return ids, nil
}

// Close disconnects the client.
func (s *HistoryStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()
	return s.client.Close(ctx)
}

func toDocument(id string, m *conversation.Memory, now time.Time) (historyDocument, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return historyDocument{}, fmt.Errorf("encode history: %w", err)
	}
	return historyDocument{ID: id, Steps: m.Len(), Data: string(data), UpdatedAt: now}, nil
}

func fromDocument(doc *historyDocument) (*conversation.Memory, error) {
	var m conversation.Memory
	if err := json.Unmarshal([]byte(doc.Data), &m); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", doc.ID, err)
	}
	return &m, nil
}

var _ conversation.HistoryStore = (*HistoryStore)(nil)
