package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/drs-api/internal/domain"
)

// ContactRepo provides typed DynamoDB operations for the contact messages table.
type ContactRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewContactRepo(client *dynamodb.Client, tableName string) *ContactRepo {
	return &ContactRepo{client: client, tableName: tableName}
}

func (r *ContactRepo) Put(ctx context.Context, m *domain.ContactMessage) error {
	m.Bucket = domain.ContactBucket
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return domain.Internal("marshal contact message", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return domain.Internal("put contact message", err)
	}
	return nil
}

// ListRecent returns up to limit messages, newest first. Message ids are ULIDs,
// so the index sort key orders them by submission time.
func (r *ContactRepo) ListRecent(ctx context.Context, limit int32) ([]domain.ContactMessage, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexBucketMessage),
		KeyConditionExpression:    aws.String("#b = :b"),
		ExpressionAttributeNames:  map[string]string{"#b": fieldBucket},
		ExpressionAttributeValues: map[string]types.AttributeValue{":b": &types.AttributeValueMemberS{Value: domain.ContactBucket}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	})
	if err != nil {
		return nil, domain.Internal("query contact messages", err)
	}
	msgs := make([]domain.ContactMessage, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &msgs); err != nil {
		return nil, domain.Internal("unmarshal contact messages", err)
	}
	return msgs, nil
}
