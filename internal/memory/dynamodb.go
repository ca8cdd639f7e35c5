package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoUserIndex = "by_user"
	// TransactWriteItems accepts at most 25 actions per call on older table limits.
	dynamoTxChunk = 25
	// dynamoTableWait bounds how long startup waits for a new table to become ACTIVE.
	dynamoTableWait = 2 * time.Minute
)

// DynamoOptions selects the table and endpoint.
type DynamoOptions struct {
	Table    string
	Region   string
	Endpoint string // non-empty for DynamoDB Local
}

// dynamoAPI is the subset of the DynamoDB client the store uses.
type dynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps turns in a DynamoDB table partitioned by user and session.
// Sort keys are time-ordered turn ids, so a plain key query returns turns in log order.
type DynamoStore struct {
	client dynamoAPI
	table  string
}

func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	if strings.TrimSpace(opts.Table) == "" {
		return nil, errors.New("dynamodb table name is required")
	}
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		loadOpts = append(loadOpts,
			config.WithEndpointResolverWithOptions(resolver),
			config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{AccessKeyID: "local", SecretAccessKey: "local"},
			}),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s := &DynamoStore{client: dynamodb.NewFromConfig(cfg), table: opts.Table}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureTable leaves a pre-provisioned table alone and otherwise creates it and waits
// until it is ACTIVE.
func (s *DynamoStore) ensureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe dynamodb table: %w", err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(dynamoUserIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create dynamodb table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = time.Second
		o.MaxDelay = 5 * time.Second
	})
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, dynamoTableWait); err != nil {
		return fmt.Errorf("wait for dynamodb table: %w", err)
	}
	return nil
}

func (s *DynamoStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	turn = prepare(turn)
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                turnToItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return Turn{}, fmt.Errorf("put turn: %w", err)
	}
	return turn, nil
}

func (s *DynamoStore) SessionTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	return s.querySession(ctx, userID, sessionID, true, 0)
}

func (s *DynamoStore) RecentSessionTurns(ctx context.Context, userID, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return s.SessionTurns(ctx, userID, sessionID)
	}
	items, err := s.querySession(ctx, userID, sessionID, false, limit)
	if err != nil {
		return nil, err
	}
	reverse(items)
	return items, nil
}

func (s *DynamoStore) RecentUserTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(dynamoUserIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	}, limit)
}

func (s *DynamoStore) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	turns, err := s.SessionTurns(ctx, userID, sessionID)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(turns); start += dynamoTxChunk {
		end := start + dynamoTxChunk
		if end > len(turns) {
			end = len(turns)
		}
		actions := make([]types.TransactWriteItem, 0, end-start)
		for _, t := range turns[start:end] {
			actions = append(actions, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(s.table),
					Key:       turnKey(t),
				},
			})
		}
		if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: actions}); err != nil {
			return deleted, fmt.Errorf("delete session turns: %w", err)
		}
		deleted += int64(len(actions))
	}
	return deleted, nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("describe table: %w", err)
	}
	return nil
}

func (s *DynamoStore) Backend() string { return "dynamodb" }

func (s *DynamoStore) Close() error { return nil }

func (s *DynamoStore) querySession(ctx context.Context, userID, sessionID string, forward bool, limit int) ([]Turn, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partitionKey(userID, sessionID)},
		},
		ScanIndexForward: aws.Bool(forward),
	}, limit)
}

// query follows pagination until limit items are collected (limit <= 0 means all).
func (s *DynamoStore) query(ctx context.Context, in *dynamodb.QueryInput, limit int) ([]Turn, error) {
	var out []Turn
	for {
		if limit > 0 {
			in.Limit = aws.Int32(int32(limit - len(out)))
		}
		res, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query turns: %w", err)
		}
		for _, item := range res.Items {
			t, err := itemToTurn(item)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		if len(res.LastEvaluatedKey) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
}

func partitionKey(userID, sessionID string) string {
	return userID + "#" + sessionID
}

func turnKey(t Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: partitionKey(t.UserID, t.SessionID)},
		"sk": &types.AttributeValueMemberS{Value: t.ID},
	}
}

func turnToItem(t Turn) map[string]types.AttributeValue {
	item := turnKey(t)
	item["user_id"] = &types.AttributeValueMemberS{Value: t.UserID}
	item["session_id"] = &types.AttributeValueMemberS{Value: t.SessionID}
	item["query"] = &types.AttributeValueMemberS{Value: t.Query}
	item["response"] = &types.AttributeValueMemberS{Value: t.Response}
	item["created_at"] = &types.AttributeValueMemberS{Value: t.CreatedAt.Format(time.RFC3339Nano)}
	return item
}

func itemToTurn(item map[string]types.AttributeValue) (Turn, error) {
	str := func(name string) (string, error) {
		v, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("dynamodb item missing string attribute %q", name)
		}
		return v.Value, nil
	}

	var (
		t   Turn
		err error
	)
	if t.ID, err = str("sk"); err != nil {
		return Turn{}, err
	}
	if t.UserID, err = str("user_id"); err != nil {
		return Turn{}, err
	}
	if t.SessionID, err = str("session_id"); err != nil {
		return Turn{}, err
	}
	if t.Query, err = str("query"); err != nil {
		return Turn{}, err
	}
	if t.Response, err = str("response"); err != nil {
		return Turn{}, err
	}
	ts, err := str("created_at")
	if err != nil {
		return Turn{}, err
	}
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Turn{}, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
