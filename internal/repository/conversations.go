package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mira-agent/internal/domain"
)

const (
	skPrefixConv = "CONV#"
	skPartMsg    = "#MSG#"

	itemTypeMetadata = "METADATA"
	itemTypeMessage  = "MESSAGE"

	messageTTL = 30 * 24 * time.Hour
)

// ErrThreadNotFound reports a conditional write that failed because the
// thread record is missing or soft-deleted.
var ErrThreadNotFound = errors.New("repository: conversation not found or deleted")

// ConversationStore wraps the single-table DynamoDB layout for conversation
// threads: metadata rows under CONV#{id} and message rows under
// CONV#{id}#MSG#{epoch}, both partitioned by user id.
type ConversationStore struct {
	api       dynamodbAPI
	tableName string
}

// NewConversationStore creates a ConversationStore for the given table.
func NewConversationStore(api dynamodbAPI, tableName string) (*ConversationStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ConversationStore{api: api, tableName: tableName}, nil
}

func threadSK(conversationID string) string {
	return skPrefixConv + conversationID
}

func messageSK(conversationID string, ts int64) string {
	return fmt.Sprintf("%s%s%s%d", skPrefixConv, conversationID, skPartMsg, ts)
}

func messagePrefix(conversationID string) string {
	return skPrefixConv + conversationID + skPartMsg
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewThread constructs a fresh thread metadata record.
func NewThread(userID, conversationID, title string, now time.Time) domain.ConversationThread {
	iso := isoTime(now)
	return domain.ConversationThread{
		UserID:         userID,
		ConversationID: conversationID,
		Title:          title,
		MessageCount:   0,
		CreatedAt:      iso,
		UpdatedAt:      iso,
	}
}

// NewMessage constructs a message record keyed and expiring off the given time.
func NewMessage(userID, conversationID, userMessage, aiResponse, chartURL string, now time.Time) domain.Message {
	return domain.Message{
		UserID:         userID,
		ConversationID: conversationID,
		Timestamp:      now.Unix(),
		CreatedAt:      isoTime(now),
		UserMessage:    userMessage,
		AIResponse:     aiResponse,
		ChartURL:       chartURL,
		TTL:            now.Add(messageTTL).Unix(),
	}
}

// GetThread fetches thread metadata. The second return value reports whether
// the record exists; a deleted thread is still returned with Deleted set.
func (s *ConversationStore) GetThread(ctx context.Context, userID, conversationID string) (domain.ConversationThread, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"sk":      &types.AttributeValueMemberS{Value: threadSK(conversationID)},
		},
	})
	if err != nil {
		return domain.ConversationThread{}, false, fmt.Errorf("repository: GetThread get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ConversationThread{}, false, nil
	}
	thread, err := itemToThread(out.Item)
	if err != nil {
		return domain.ConversationThread{}, false, fmt.Errorf("repository: GetThread: %w", err)
	}
	return thread, true, nil
}

// PutThread writes or replaces a thread metadata record.
func (s *ConversationStore) PutThread(ctx context.Context, thread domain.ConversationThread) error {
	if thread.UserID == "" || thread.ConversationID == "" {
		return errors.New("repository: PutThread: user id and conversation id are required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      threadItem(thread),
	})
	if err != nil {
		return fmt.Errorf("repository: PutThread: %w", err)
	}
	return nil
}

// PutMessage writes a message record.
func (s *ConversationStore) PutMessage(ctx context.Context, msg domain.Message) error {
	if msg.UserID == "" || msg.ConversationID == "" {
		return errors.New("repository: PutMessage: user id and conversation id are required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      messageItem(msg),
	})
	if err != nil {
		return fmt.Errorf("repository: PutMessage: %w", err)
	}
	return nil
}

// TouchThread applies the append side effects in one conditional write:
// refresh updated_at, increment message_count, replace the preview. The
// condition requires the thread record to exist.
func (s *ConversationStore) TouchThread(ctx context.Context, userID, conversationID, preview string, now time.Time) error {
	if runes := []rune(preview); len(runes) > 100 {
		preview = string(runes[:100])
	}
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"sk":      &types.AttributeValueMemberS{Value: threadSK(conversationID)},
		},
		UpdateExpression: aws.String(
			"SET updated_at = :updated_at, message_count = message_count + :inc, last_message_preview = :preview",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":updated_at": &types.AttributeValueMemberS{Value: isoTime(now)},
			":inc":        numAttr(1),
			":preview":    &types.AttributeValueMemberS{Value: preview},
		},
		ConditionExpression: aws.String("attribute_exists(user_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrThreadNotFound
		}
		return fmt.Errorf("repository: TouchThread: %w", err)
	}
	return nil
}

// ListThreads queries all CONV# metadata rows for a user, excluding deleted
// threads. Recency sorting happens above the store because the sort key
// does not correlate with updated_at.
func (s *ConversationStore) ListThreads(ctx context.Context, userID string, startKey *PageKey) ([]domain.ConversationThread, *PageKey, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("user_id = :uid AND begins_with(sk, :prefix)"),
		FilterExpression:       aws.String("item_type = :metadata AND (attribute_not_exists(deleted) OR deleted = :deleted_false)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":           &types.AttributeValueMemberS{Value: userID},
			":prefix":        &types.AttributeValueMemberS{Value: skPrefixConv},
			":metadata":      &types.AttributeValueMemberS{Value: itemTypeMetadata},
			":deleted_false": &types.AttributeValueMemberBOOL{Value: false},
		},
		ExclusiveStartKey: startKey.attributeKey(),
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: ListThreads query: %w", err)
	}

	threads := make([]domain.ConversationThread, 0, len(out.Items))
	for _, item := range out.Items {
		thread, err := itemToThread(item)
		if err != nil {
			return nil, nil, fmt.Errorf("repository: ListThreads: %w", err)
		}
		threads = append(threads, thread)
	}
	return threads, pageKeyFromAttributes(out.LastEvaluatedKey), nil
}

// ListMessages queries a thread's message rows in chronological order,
// paginated by the store's native cursor.
func (s *ConversationStore) ListMessages(ctx context.Context, userID, conversationID string, limit int32, startKey *PageKey) ([]domain.Message, *PageKey, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("user_id = :uid AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":    &types.AttributeValueMemberS{Value: userID},
			":prefix": &types.AttributeValueMemberS{Value: messagePrefix(conversationID)},
		},
		Limit:             aws.Int32(limit),
		ScanIndexForward:  aws.Bool(true),
		ExclusiveStartKey: startKey.attributeKey(),
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: ListMessages query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, nil, fmt.Errorf("repository: ListMessages: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, pageKeyFromAttributes(out.LastEvaluatedKey), nil
}

// SoftDeleteThread marks a thread deleted without removing its rows. The
// condition requires the thread record to exist.
func (s *ConversationStore) SoftDeleteThread(ctx context.Context, userID, conversationID string, now time.Time) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"sk":      &types.AttributeValueMemberS{Value: threadSK(conversationID)},
		},
		UpdateExpression: aws.String("SET deleted = :true, deleted_at = :now, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  &types.AttributeValueMemberS{Value: isoTime(now)},
		},
		ConditionExpression: aws.String("attribute_exists(user_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrThreadNotFound
		}
		return fmt.Errorf("repository: SoftDeleteThread: %w", err)
	}
	return nil
}

// RenameThread updates the title of an existing, non-deleted thread.
func (s *ConversationStore) RenameThread(ctx context.Context, userID, conversationID, title string, now time.Time) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
			"sk":      &types.AttributeValueMemberS{Value: threadSK(conversationID)},
		},
		UpdateExpression: aws.String("SET title = :title, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title": &types.AttributeValueMemberS{Value: title},
			":now":   &types.AttributeValueMemberS{Value: isoTime(now)},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		ConditionExpression: aws.String("attribute_exists(user_id) AND (attribute_not_exists(deleted) OR deleted = :false)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrThreadNotFound
		}
		return fmt.Errorf("repository: RenameThread: %w", err)
	}
	return nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func threadItem(thread domain.ConversationThread) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"user_id":              &types.AttributeValueMemberS{Value: thread.UserID},
		"sk":                   &types.AttributeValueMemberS{Value: threadSK(thread.ConversationID)},
		"item_type":            &types.AttributeValueMemberS{Value: itemTypeMetadata},
		"conversation_id":      &types.AttributeValueMemberS{Value: thread.ConversationID},
		"title":                &types.AttributeValueMemberS{Value: thread.Title},
		"message_count":        numAttr(int64(thread.MessageCount)),
		"created_at":           &types.AttributeValueMemberS{Value: thread.CreatedAt},
		"updated_at":           &types.AttributeValueMemberS{Value: thread.UpdatedAt},
		"last_message_preview": &types.AttributeValueMemberS{Value: thread.LastMessagePreview},
	}
	if thread.Deleted {
		item["deleted"] = &types.AttributeValueMemberBOOL{Value: true}
		item["deleted_at"] = &types.AttributeValueMemberS{Value: thread.DeletedAt}
	}
	return item
}

func messageItem(msg domain.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"user_id":         &types.AttributeValueMemberS{Value: msg.UserID},
		"sk":              &types.AttributeValueMemberS{Value: messageSK(msg.ConversationID, msg.Timestamp)},
		"item_type":       &types.AttributeValueMemberS{Value: itemTypeMessage},
		"conversation_id": &types.AttributeValueMemberS{Value: msg.ConversationID},
		"timestamp_epoch": numAttr(msg.Timestamp),
		"created_at":      &types.AttributeValueMemberS{Value: msg.CreatedAt},
		"user_message":    &types.AttributeValueMemberS{Value: msg.UserMessage},
		"ai_response":     &types.AttributeValueMemberS{Value: msg.AIResponse},
		"ttl_epoch":       numAttr(msg.TTL),
	}
	if msg.ChartURL != "" {
		item["chart_url"] = &types.AttributeValueMemberS{Value: msg.ChartURL}
	}
	return item
}

func itemToThread(item map[string]types.AttributeValue) (domain.ConversationThread, error) {
	count, err := intAttr(item, "message_count")
	if err != nil {
		return domain.ConversationThread{}, err
	}
	return domain.ConversationThread{
		UserID:             strAttr(item, "user_id"),
		ConversationID:     strAttr(item, "conversation_id"),
		Title:              strAttr(item, "title"),
		MessageCount:       int(count),
		CreatedAt:          strAttr(item, "created_at"),
		UpdatedAt:          strAttr(item, "updated_at"),
		LastMessagePreview: strAttr(item, "last_message_preview"),
		Deleted:            boolAttr(item, "deleted"),
		DeletedAt:          strAttr(item, "deleted_at"),
	}, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	ts, err := intAttr(item, "timestamp_epoch")
	if err != nil {
		return domain.Message{}, err
	}
	ttl, err := intAttr(item, "ttl_epoch")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		UserID:         strAttr(item, "user_id"),
		ConversationID: strAttr(item, "conversation_id"),
		Timestamp:      ts,
		CreatedAt:      strAttr(item, "created_at"),
		UserMessage:    strAttr(item, "user_message"),
		AIResponse:     strAttr(item, "ai_response"),
		ChartURL:       strAttr(item, "chart_url"),
		TTL:            ttl,
	}, nil
}
