package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoCollectionAttr = "collection"
	dynamoIDAttr         = "id"
	dynamoDocAttr        = "doc"

	dynamoBatchWriteSize    = 25
	dynamoTransactWriteSize = 100
	dynamoUnprocessedRetry  = 5
)

// DynamoDBAPI captures the subset of dynamodb.Client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDBConfig holds connection settings for the DynamoDB store.
type DynamoDBConfig struct {
	Table     string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// DynamoDBDocumentStore implements DocumentStore on a single DynamoDB table.
// The collection name is the partition key and the document id the sort key;
// the document itself is kept as a map attribute.
type DynamoDBDocumentStore struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDBDocumentStore builds a client from the default AWS config chain
// and creates the table when it does not exist yet.
func NewDynamoDBDocumentStore(ctx context.Context, cfg DynamoDBConfig) (*DynamoDBDocumentStore, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	store := newDynamoDBDocumentStore(client, cfg.Table)
	if err := store.EnsureTable(ctx); err != nil {
		return nil, err
	}
	log.Printf("[DynamoDB] Connected - region:%s, table:%s", cfg.Region, store.table)
	return store, nil
}

func newDynamoDBDocumentStore(client DynamoDBAPI, table string) *DynamoDBDocumentStore {
	if table == "" {
		table = "documents"
	}
	return &DynamoDBDocumentStore{client: client, table: table}
}

// EnsureTable creates the documents table and waits until it is active.
func (r *DynamoDBDocumentStore) EnsureTable(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", r.table, classifyDynamoError(err))
	}

	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(r.table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(dynamoCollectionAttr), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(dynamoIDAttr), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(dynamoCollectionAttr), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(dynamoIDAttr), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("failed to create table %s: %w", r.table, classifyDynamoError(err))
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("table %s did not become active: %w", r.table, err)
	}
	log.Printf("[DynamoDB] Created table %s", r.table)
	return nil
}

// InsertOne puts a document unless its id already exists in the collection.
func (r *DynamoDBDocumentStore) InsertOne(ctx context.Context, collection string, doc Document) error {
	item, err := r.item(collection, doc)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": dynamoIDAttr},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s in %s", ErrDuplicate, doc[IDField], collection)
	}
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, classifyDynamoError(err))
	}
	return nil
}

// InsertMany writes documents in transactions of up to 100 items. A batch
// containing an existing id is rejected as a whole.
func (r *DynamoDBDocumentStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	items := make([]types.TransactWriteItem, 0, len(docs))
	for _, doc := range docs {
		item, err := r.item(collection, doc)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(r.table),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": dynamoIDAttr},
			},
		})
	}

	for batch := range slices.Chunk(items, dynamoTransactWriteSize) {
		_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: batch})
		if err != nil {
			return fmt.Errorf("failed to insert %d documents into %s: %w", len(batch), collection, classifyDynamoError(err))
		}
	}
	return nil
}

// FindByID retrieves a document by id.
func (r *DynamoDBDocumentStore) FindByID(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            dynamoKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in %s: %w", id, collection, classifyDynamoError(err))
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return decodeDynamoItem(out.Item)
}

// FindByIDs retrieves the documents whose id is in ids, ordered by id.
func (r *DynamoDBDocumentStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]Document, error) {
	unique := slices.Compact(slices.Sorted(slices.Values(ids)))
	docs := make([]Document, 0, len(unique))
	for _, id := range unique {
		doc, err := r.FindByID(ctx, collection, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FindAll retrieves every document in the collection, ordered by id.
func (r *DynamoDBDocumentStore) FindAll(ctx context.Context, collection string) ([]Document, error) {
	input, err := r.queryInput(collection)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, collection, input)
}

// FindByField retrieves documents whose dotted field path equals value.
func (r *DynamoDBDocumentStore) FindByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if !fieldPattern.MatchString(field) {
		return nil, fmt.Errorf("invalid field path %q", field)
	}
	input, err := r.queryInput(collection)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter value: %w", err)
	}

	path := []string{"#doc"}
	input.ExpressionAttributeNames["#doc"] = dynamoDocAttr
	for i, part := range strings.Split(field, ".") {
		name := fmt.Sprintf("#f%d", i)
		input.ExpressionAttributeNames[name] = part
		path = append(path, name)
	}
	input.ExpressionAttributeValues[":v"] = av
	input.FilterExpression = aws.String(strings.Join(path, ".") + " = :v")
	return r.query(ctx, collection, input)
}

func (r *DynamoDBDocumentStore) queryInput(collection string) (*dynamodb.QueryInput, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return &dynamodb.QueryInput{
		TableName:                aws.String(r.table),
		KeyConditionExpression:   aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{"#c": dynamoCollectionAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
		ConsistentRead: aws.Bool(true),
	}, nil
}

func (r *DynamoDBDocumentStore) query(ctx context.Context, collection string, input *dynamodb.QueryInput) ([]Document, error) {
	docs := []Document{}
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", collection, classifyDynamoError(err))
		}
		for _, item := range page.Items {
			doc, err := decodeDynamoItem(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// UpdateByID emulates $set with a read-merge-write guarded by an existence check.
func (r *DynamoDBDocumentStore) UpdateByID(ctx context.Context, collection, id string, fields Document) (Document, error) {
	doc, err := r.FindByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	for path, value := range fields {
		if path == IDField {
			continue
		}
		setPath(doc, path, value)
	}
	item, err := r.item(collection, doc)
	if err != nil {
		return nil, err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": dynamoIDAttr},
	})
	if isConditionFailed(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s in %s: %w", id, collection, classifyDynamoError(err))
	}
	return doc, nil
}

// DeleteByID removes a document and returns what was deleted.
func (r *DynamoDBDocumentStore) DeleteByID(ctx context.Context, collection, id string) (Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(r.table),
		Key:          dynamoKey(collection, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s from %s: %w", id, collection, classifyDynamoError(err))
	}
	if len(out.Attributes) == 0 {
		return nil, ErrNotFound
	}
	return decodeDynamoItem(out.Attributes)
}

// DeleteByIDs removes every document whose id is in ids.
func (r *DynamoDBDocumentStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return r.batchDelete(ctx, collection, slices.Compact(slices.Sorted(slices.Values(ids))))
}

// DeleteAll removes every document in the collection.
func (r *DynamoDBDocumentStore) DeleteAll(ctx context.Context, collection string) error {
	input, err := r.queryInput(collection)
	if err != nil {
		return err
	}
	input.ExpressionAttributeNames["#id"] = dynamoIDAttr
	input.ProjectionExpression = aws.String("#id")

	var ids []string
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", collection, classifyDynamoError(err))
		}
		for _, item := range page.Items {
			if id, ok := item[dynamoIDAttr].(*types.AttributeValueMemberS); ok {
				ids = append(ids, id.Value)
			}
		}
	}
	return r.batchDelete(ctx, collection, ids)
}

func (r *DynamoDBDocumentStore) batchDelete(ctx context.Context, collection string, ids []string) error {
	for batch := range slices.Chunk(ids, dynamoBatchWriteSize) {
		writes := make([]types.WriteRequest, len(batch))
		for i, id := range batch {
			writes[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: dynamoKey(collection, id)}}
		}
		pending := map[string][]types.WriteRequest{r.table: writes}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == dynamoUnprocessedRetry {
				return fmt.Errorf("failed to delete from %s: %w: unprocessed items remain", collection, ErrUnavailable)
			}
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("failed to delete from %s: %w", collection, classifyDynamoError(err))
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// Count returns the number of documents in the collection.
func (r *DynamoDBDocumentStore) Count(ctx context.Context, collection string) (int64, error) {
	input, err := r.queryInput(collection)
	if err != nil {
		return 0, err
	}
	input.Select = types.SelectCount

	var total int64
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count %s: %w", collection, classifyDynamoError(err))
		}
		total += int64(page.Count)
	}
	return total, nil
}

// Ping checks the table is reachable.
func (r *DynamoDBDocumentStore) Ping(ctx context.Context) error {
	if _, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)}); err != nil {
		return classifyDynamoError(err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no connection of its own.
func (r *DynamoDBDocumentStore) Close() error {
	return nil
}

func (r *DynamoDBDocumentStore) item(collection string, doc Document) (map[string]types.AttributeValue, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	id, ok := doc[IDField].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("document is missing a string %s", IDField)
	}
	body, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	item := dynamoKey(collection, id)
	item[dynamoDocAttr] = &types.AttributeValueMemberM{Value: body}
	return item, nil
}

func validateCollection(collection string) error {
	if !collectionPattern.MatchString(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	return nil
}

func dynamoKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoCollectionAttr: &types.AttributeValueMemberS{Value: collection},
		dynamoIDAttr:         &types.AttributeValueMemberS{Value: id},
	}
}

func decodeDynamoItem(item map[string]types.AttributeValue) (Document, error) {
	body, ok := item[dynamoDocAttr].(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("failed to decode document: %w: item has no %s map", ErrCorrupt, dynamoDocAttr)
	}
	var doc Document
	if err := attributevalue.UnmarshalMap(body.Value, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w: %w", ErrCorrupt, err)
	}
	return doc, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// classifyDynamoError marks duplicate ids and connectivity failures.
func classifyDynamoError(err error) error {
	var (
		netErr    net.Error
		canceled  *types.TransactionCanceledException
		notFound  *types.ResourceNotFoundException
		throttled *types.ProvisionedThroughputExceededException
		limited   *types.RequestLimitExceeded
	)
	switch {
	case errors.As(err, &canceled):
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %w", ErrDuplicate, err)
			}
		}
	case errors.As(err, &netErr),
		errors.As(err, &notFound),
		errors.As(err, &throttled),
		errors.As(err, &limited),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

var _ DocumentStore = (*DynamoDBDocumentStore)(nil)
