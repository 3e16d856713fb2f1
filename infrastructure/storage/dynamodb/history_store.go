package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

// historyItem represents a conversation in DynamoDB. The history is kept as
// JSON text so argument and result maps round-trip unchanged.
type historyItem struct {
	ID        string `dynamodbav:"id"`
	Steps     int    `dynamodbav:"steps"`
	Data      string `dynamodbav:"data"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// HistoryStore is a DynamoDB-backed implementation of conversation.HistoryStore.
type HistoryStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
}

// NewHistoryStore creates a new DynamoDB history store.
func NewHistoryStore(client *Client) *HistoryStore {
	return &HistoryStore{
		client:       client.DynamoDB(),
		tableName:    client.config.TableName,
		queryTimeout: client.config.QueryTimeout,
	}
}

// Save stores the full history, replacing any previous version.
func (s *HistoryStore) Save(ctx context.Context, id string, m *conversation.Memory) error {
	if id == "" {
		return conversation.ErrConversationNotFound
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	av, err := attributevalue.MarshalMap(historyItem{
		ID:        id,
		Steps:     m.Len(),
		Data:      string(data),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("dynamodb save %s: %w", id, err)
	}
	return nil
}

// Load retrieves a history.
func (s *HistoryStore) Load(ctx context.Context, id string) (*conversation.Memory, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb load %s: %w", id, err)
	}
	if result.Item == nil {
		return nil, conversation.ErrConversationNotFound
	}

	var item historyItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, err
	}
	var m conversation.Memory
	if err := json.Unmarshal([]byte(item.Data), &m); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", id, err)
	}
	return &m, nil
}

// Delete removes a history.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          key(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %s: %w", id, err)
	}
	if len(result.Attributes) == 0 {
		return conversation.ErrConversationNotFound
	}
	return nil
}

// List returns the stored conversation IDs in lexical order. It scans the
// table projecting only the key.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb list: %w", err)
		}
		for _, raw := range page.Items {
			var item struct {
				ID string `dynamodbav:"id"`
			}
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, err
			}
			ids = append(ids, item.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

var _ conversation.HistoryStore = (*HistoryStore)(nil)
