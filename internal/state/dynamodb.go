package state

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

	"github.com/capitalize-ai/chopibot/internal/model"
)

const (
	skState     = "STATE#"
	ttlDuration = 90 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps conversation state in a DynamoDB table keyed by PK/SK.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("state: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("state: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

// Name returns the store name.
func (s *DynamoStore) Name() string {
	return "dynamodb"
}

func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// Load reads the state item with a consistent read.
func (s *DynamoStore) Load(ctx context.Context, conversationID string) (model.ConversationState, uint64, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.ConversationState{}, 0, fmt.Errorf("state: dynamodb get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return model.ConversationState{}, 0, nil
	}

	return itemToState(out.Item)
}

// Save writes the state item, conditioned on the revision read by Load.
func (s *DynamoStore) Save(ctx context.Context, conversationID string, st model.ConversationState, revision uint64) (uint64, error) {
	next := revision + 1

	in := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":           &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK":           &types.AttributeValueMemberS{Value: skState},
			"turnCounter":  &types.AttributeValueMemberN{Value: strconv.Itoa(st.TurnCounter)},
			"welcomedUser": &types.AttributeValueMemberBOOL{Value: st.WelcomedUser},
			"rev":          &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"updatedAt":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(ttlDuration).Unix(), 10)},
		},
	}
	if revision == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("rev = :rev")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":rev": &types.AttributeValueMemberN{Value: strconv.FormatUint(revision, 10)},
		}
	}

	if _, err := s.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("state: dynamodb put item: %w", err)
	}
	return next, nil
}

func itemToState(item map[string]types.AttributeValue) (model.ConversationState, uint64, error) {
	var st model.ConversationState

	if v, ok := item["turnCounter"].(*types.AttributeValueMemberN); ok {
		n, err := strconv.Atoi(v.Value)
		if err != nil {
			return st, 0, fmt.Errorf("state: decode turnCounter: %w", err)
		}
		st.TurnCounter = n
	}
	if v, ok := item["welcomedUser"].(*types.AttributeValueMemberBOOL); ok {
		st.WelcomedUser = v.Value
	}

	v, ok := item["rev"].(*types.AttributeValueMemberN)
	if !ok {
		return st, 0, errors.New("state: item has no numeric rev attribute")
	}
	rev, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil {
		return st, 0, fmt.Errorf("state: decode rev: %w", err)
	}
	return st, rev, nil
}
