package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/models"
)

// BatchWriteItem accepts at most 25 requests.
const dynamoBatchSize = 25

const dynamoUnprocessedRetries = 3

type failureItem struct {
	ID         string `dynamodbav:"id"`
	Kind       string `dynamodbav:"kind"`
	Title      string `dynamodbav:"title"`
	URL        string `dynamodbav:"url"`
	Reason     string `dynamodbav:"reason"`
	Screenshot string `dynamodbav:"screenshot,omitempty"`
	Timestamp  string `dynamodbav:"timestamp"`
}

func toFailureItem(o models.ApplicationOutcome) failureItem {
	return failureItem{
		ID:         o.ID,
		Kind:       string(o.Kind),
		Title:      o.Title,
		URL:        o.URL,
		Reason:     o.Reason,
		Screenshot: o.Screenshot,
		Timestamp:  o.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (i failureItem) outcome() models.ApplicationOutcome {
	ts, _ := time.Parse(time.RFC3339Nano, i.Timestamp)
	return models.ApplicationOutcome{
		ID:         i.ID,
		Kind:       models.OutcomeKind(i.Kind),
		Title:      i.Title,
		URL:        i.URL,
		Reason:     i.Reason,
		Screenshot: i.Screenshot,
		Timestamp:  ts,
	}
}

// DynamoFailureSink stores failures in a DynamoDB table keyed by outcome ID.
type DynamoFailureSink struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	logger *zap.Logger
}

func NewDynamoFailureSink(cfg config.AWSConfig, table string, logger *zap.Logger) (*DynamoFailureSink, error) {
	sess, err := newAWSSession(cfg)
	if err != nil {
		return nil, err
	}
	return NewDynamoFailureSinkWithClient(dynamodb.New(sess), table, logger), nil
}

func NewDynamoFailureSinkWithClient(client dynamodbiface.DynamoDBAPI, table string, logger *zap.Logger) *DynamoFailureSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoFailureSink{client: client, table: table, logger: logger.Named("dynamodb")}
}

// SaveBatch puts outcomes in chunks. Puts are keyed by ID, so replays
// overwrite rather than duplicate.
func (s *DynamoFailureSink) SaveBatch(ctx context.Context, outcomes []models.ApplicationOutcome) error {
	for start := 0; start < len(outcomes); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(outcomes))
		writes := make([]*dynamodb.WriteRequest, 0, end-start)
		for _, o := range outcomes[start:end] {
			item, err := dynamodbattribute.MarshalMap(toFailureItem(o))
			if err != nil {
				return fmt.Errorf("failed to marshal failure %s: %w", o.ID, err)
			}
			writes = append(writes, &dynamodb.WriteRequest{PutRequest: &dynamodb.PutRequest{Item: item}})
		}
		if err := s.write(ctx, writes); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoFailureSink) write(ctx context.Context, writes []*dynamodb.WriteRequest) error {
	pending := map[string][]*dynamodb.WriteRequest{s.table: writes}
	for attempt := 0; len(pending[s.table]) > 0; attempt++ {
		if attempt > dynamoUnprocessedRetries {
			return fmt.Errorf("dynamodb left %d failures unprocessed", len(pending[s.table]))
		}
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*100*time.Millisecond); err != nil {
				return err
			}
		}
		out, err := s.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to write failures to dynamodb: %w", err)
		}
		pending = out.UnprocessedItems
		if pending == nil {
			pending = map[string][]*dynamodb.WriteRequest{}
		}
	}
	return nil
}

func (s *DynamoFailureSink) GetAll(ctx context.Context) ([]models.ApplicationOutcome, error) {
	var items []failureItem
	var decodeErr error
	err := s.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{TableName: aws.String(s.table)},
		func(page *dynamodb.ScanOutput, last bool) bool {
			var batch []failureItem
			if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); err != nil {
				decodeErr = err
				return false
			}
			items = append(items, batch...)
			return true
		})
	if err := errors.Join(err, decodeErr); err != nil {
		return nil, fmt.Errorf("failed to scan failures: %w", err)
	}

	out := make([]models.ApplicationOutcome, 0, len(items))
	for _, i := range items {
		out = append(out, i.outcome())
	}
	sortOutcomes(out)
	return out, nil
}
