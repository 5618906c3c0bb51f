package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"gynecology-chatbot/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"

	// Fixed-width UTC layout so that string order equals time order in sort keys
	// and in the sessions index.
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	batchWriteLimit      = 25
	maxBatchWriteRetries = 5
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Client stores sessions and their messages in a single DynamoDB table.
// A session is the META# item under SESSION#<id>; its messages share the
// partition with MSG#<time>#<id> sort keys. Session listing per user uses a
// global secondary index on userId/updatedAt that only META# items populate.
type Client struct {
	api           dynamodbAPI
	tableName     string
	sessionsIndex string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName, sessionsIndex string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(sessionsIndex) == "" {
		return nil, errors.New("repository: sessions index must not be empty")
	}
	return &Client{api: api, tableName: tableName, sessionsIndex: sessionsIndex}, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func msgSK(ts time.Time, messageID string) string {
	return skPrefixMsg + formatTime(ts) + "#" + messageID
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(timeLayout)
}

func sessionKey(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// CreateSession writes a new session record. The id must be unused.
func (c *Client) CreateSession(ctx context.Context, s domain.Session) error {
	if s.ID == "" || s.UserID == "" {
		return errors.New("repository: CreateSession: id and user are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                sessionItem(s),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateSession: %w", err)
	}
	return nil
}

// GetSession returns domain.ErrNotFound when the session does not exist.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            sessionKey(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, fmt.Errorf("repository: GetSession %q: %w", sessionID, domain.ErrNotFound)
	}
	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession unmarshal: %w", err)
	}
	return s, nil
}

// ListSessions returns the user's sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.sessionsIndex),
		KeyConditionExpression: aws.String("userId = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var sessions []domain.Session
	err := c.queryAll(ctx, in, func(item map[string]types.AttributeValue) error {
		s, err := itemToSession(item)
		if err != nil {
			return err
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListSessions: %w", err)
	}
	return sessions, nil
}

// RenameSession sets a new title and updated time on an existing session.
func (c *Client) RenameSession(ctx context.Context, sessionID, title string, at time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 sessionKey(sessionID),
		UpdateExpression:    aws.String("SET title = :title, updatedAt = :updated"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title":   &types.AttributeValueMemberS{Value: title},
			":updated": &types.AttributeValueMemberS{Value: formatTime(at)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RenameSession: %w", notFoundOnCondition(err))
	}
	return nil
}

// TouchSession bumps the session's updated time. Concurrent touches are
// last-write-wins.
func (c *Client) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 sessionKey(sessionID),
		UpdateExpression:    aws.String("SET updatedAt = :updated"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":updated": &types.AttributeValueMemberS{Value: formatTime(at)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: TouchSession: %w", notFoundOnCondition(err))
	}
	return nil
}

// DeleteSession removes the session record and every message in it.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		},
		ProjectionExpression: aws.String("PK, SK"),
	}

	var deletes []types.WriteRequest
	err := c.queryAll(ctx, in, func(item map[string]types.AttributeValue) error {
		deletes = append(deletes, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			}},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteSession query: %w", err)
	}
	if len(deletes) == 0 {
		return fmt.Errorf("repository: DeleteSession %q: %w", sessionID, domain.ErrNotFound)
	}

	for start := 0; start < len(deletes); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(deletes))
		if err := c.batchWrite(ctx, deletes[start:end]); err != nil {
			return fmt.Errorf("repository: DeleteSession: %w", err)
		}
	}
	return nil
}

// AppendMessage persists a new message. Messages are never overwritten.
func (c *Client) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" || msg.SessionID == "" {
		return errors.New("repository: AppendMessage: id and session are required")
	}
	if msg.CreatedAt.IsZero() {
		return errors.New("repository: AppendMessage: created time is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                messageItem(msg),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendMessage: %w", err)
	}
	return nil
}

// RecentMessages returns at most limit of the newest messages, oldest first.
func (c *Client) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("repository: RecentMessages: limit must be positive, got %d", limit)
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT keeps the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: RecentMessages query: %w", err)
	}
	if out == nil {
		return nil, nil
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentMessages unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns every message of the session, oldest first.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var msgs []domain.Message
	err := c.queryAll(ctx, in, func(item map[string]types.AttributeValue) error {
		msg, err := itemToMessage(item)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessages: %w", err)
	}
	return msgs, nil
}

func (c *Client) queryAll(ctx context.Context, in *dynamodb.QueryInput, fn func(map[string]types.AttributeValue) error) error {
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		for _, item := range out.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		next := *in
		next.ExclusiveStartKey = out.LastEvaluatedKey
		in = &next
	}
}

func (c *Client) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{c.tableName: reqs}
	for attempt := 0; attempt < maxBatchWriteRetries; attempt++ {
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if out == nil || len(out.UnprocessedItems[c.tableName]) == 0 {
			return nil
		}
		pending = map[string][]types.WriteRequest{c.tableName: out.UnprocessedItems[c.tableName]}
	}
	return fmt.Errorf("%d items still unprocessed after %d attempts", len(pending[c.tableName]), maxBatchWriteRetries)
}

func notFoundOnCondition(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return domain.ErrNotFound
	}
	return err
}

func sessionItem(s domain.Session) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(s.ID)},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"sessionId": &types.AttributeValueMemberS{Value: s.ID},
		"userId":    &types.AttributeValueMemberS{Value: s.UserID},
		"title":     &types.AttributeValueMemberS{Value: s.Title},
		"createdAt": &types.AttributeValueMemberS{Value: formatTime(s.CreatedAt)},
		"updatedAt": &types.AttributeValueMemberS{Value: formatTime(s.UpdatedAt)},
	}
}

func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	id, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Session{}, err
	}
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Session{}, err
	}
	title, _ := strAttr(item, "title") // allow empty
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Session{}, err
	}
	updated, err := timeAttr(item, "updatedAt")
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		ID:        id,
		UserID:    userID,
		Title:     title,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func messageItem(msg domain.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(msg.SessionID)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(msg.CreatedAt, msg.ID)},
		"messageId": &types.AttributeValueMemberS{Value: msg.ID},
		"sessionId": &types.AttributeValueMemberS{Value: msg.SessionID},
		"type":      &types.AttributeValueMemberS{Value: string(msg.Type)},
		"text":      &types.AttributeValueMemberS{Value: msg.Text},
		"createdAt": &types.AttributeValueMemberS{Value: formatTime(msg.CreatedAt)},
	}
	if msg.PainScale != nil {
		item["painScale"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*msg.PainScale)}
	}
	if msg.AIProvider != "" {
		item["aiProvider"] = &types.AttributeValueMemberS{Value: msg.AIProvider}
	}
	return item
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "messageId")
	if err != nil {
		return domain.Message{}, err
	}
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Message{}, err
	}
	typ, err := strAttr(item, "type")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        id,
		SessionID: sessionID,
		Type:      domain.MessageType(typ),
		Text:      text,
		CreatedAt: created,
	}
	if _, ok := item["painScale"]; ok {
		pain, err := intAttr(item, "painScale")
		if err != nil {
			return domain.Message{}, err
		}
		msg.PainScale = &pain
	}
	msg.AIProvider, _ = strAttr(item, "aiProvider") // user messages carry none
	return msg, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
