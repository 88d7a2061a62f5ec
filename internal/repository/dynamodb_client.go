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

	"selfintro-bot/internal/domain"
)

const skSession = "SESSION#"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores sessions in a DynamoDB table whose "ttl" attribute is the
// table's TTL attribute.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, ttl: normalizeTTL(ttl), now: time.Now}, nil
}

// userPK returns the DynamoDB partition key for a user's session.
func userPK(userID string) string {
	return "USER#" + userID
}

func (c *Client) key(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

// Load returns the user's session, or a fresh one when none is live.
func (c *Client) Load(ctx context.Context, userID string) (domain.Session, error) {
	if userID == "" {
		return domain.Session{}, errors.New("repository: Load: user id is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewSession(userID), nil
	}

	sess, expires, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: Load decode: %w", err)
	}
	// DynamoDB deletes expired items lazily.
	if expires <= c.now().Unix() {
		fresh := domain.NewSession(userID)
		fresh.Version = sess.Version
		return fresh, nil
	}
	return sess, nil
}

// Save writes the session if its version is current.
func (c *Client) Save(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if sess.UserID == "" {
		return domain.Session{}, errors.New("repository: Save: user id is required")
	}
	next := sess.Clone()
	next.Version = sess.Version + 1
	next.UpdatedAt = c.now().UTC()

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(next, next.UpdatedAt.Add(c.ttl).Unix()),
	}
	if sess.Version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("version = :expected")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(sess.Version, 10)},
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.Session{}, ErrConflict
		}
		return domain.Session{}, fmt.Errorf("repository: Save: %w", err)
	}
	return next, nil
}

// Delete removes the user's session.
func (c *Client) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("repository: Delete: user id is required")
	}
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(userID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func sessionItem(s domain.Session, expires int64) map[string]types.AttributeValue {
	answers := make(map[string]types.AttributeValue, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = &types.AttributeValueMemberS{Value: v}
	}
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: userPK(s.UserID)},
		"SK":          &types.AttributeValueMemberS{Value: skSession},
		"userId":      &types.AttributeValueMemberS{Value: s.UserID},
		"step":        &types.AttributeValueMemberN{Value: strconv.Itoa(s.Step)},
		"answers":     &types.AttributeValueMemberM{Value: answers},
		"lastMessage": &types.AttributeValueMemberS{Value: s.LastMessage},
		"prompted":    &types.AttributeValueMemberBOOL{Value: s.Prompted},
		"version":     &types.AttributeValueMemberN{Value: strconv.FormatInt(s.Version, 10)},
		"updatedAt":   &types.AttributeValueMemberS{Value: s.UpdatedAt.Format(time.RFC3339)},
		"ttl":         &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
	}
}

// itemToSession converts a DynamoDB attribute map to a Session and its expiry.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, int64, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Session{}, 0, err
	}
	step, err := intAttr(item, "step")
	if err != nil {
		return domain.Session{}, 0, err
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.Session{}, 0, err
	}
	expires, err := intAttr(item, "ttl")
	if err != nil {
		return domain.Session{}, 0, err
	}
	lastMessage, _ := strAttr(item, "lastMessage") // allow empty

	sess := domain.NewSession(userID)
	sess.Step = step
	sess.Version = int64(version)
	sess.LastMessage = lastMessage

	if v, ok := item["prompted"].(*types.AttributeValueMemberBOOL); ok {
		sess.Prompted = v.Value
	}
	if raw, ok := item["updatedAt"].(*types.AttributeValueMemberS); ok {
		if ts, err := time.Parse(time.RFC3339, raw.Value); err == nil {
			sess.UpdatedAt = ts
		}
	}
	if m, ok := item["answers"].(*types.AttributeValueMemberM); ok {
		for k, v := range m.Value {
			s, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return domain.Session{}, 0, fmt.Errorf("repository: answer %q is not a string", k)
			}
			sess.Answers[k] = s.Value
		}
	}
	return sess, int64(expires), nil
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
