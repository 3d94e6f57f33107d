// Package dynamo stores file records and devices in DynamoDB.
//
// Files live in a table keyed by "id" with a global secondary index on
// "spatialKey". The numeric "ttl" attribute holds epoch seconds and can be
// registered as the table's native TTL attribute.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"geofyle/internal/model"
	"geofyle/internal/repository"
)

// Client defines the DynamoDB operations used by the store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Tables names the DynamoDB resources used by the store.
type Tables struct {
	Files        string
	Devices      string
	SpatialIndex string
}

func (t Tables) withDefaults() Tables {
	if t.Files == "" {
		t.Files = "files"
	}
	if t.Devices == "" {
		t.Devices = "devices"
	}
	if t.SpatialIndex == "" {
		t.SpatialIndex = "SpatialKeyIndex"
	}
	return t
}

// Store implements repository.FileRepository and repository.DeviceRepository.
type Store struct {
	client Client
	tables Tables
}

// New creates a Store. Empty table names fall back to files, devices and SpatialKeyIndex.
func New(client Client, tables Tables) *Store {
	return &Store{client: client, tables: tables.withDefaults()}
}

var (
	_ repository.FileRepository   = (*Store)(nil)
	_ repository.DeviceRepository = (*Store)(nil)
)

func idKey(id string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{"id": &dbtypes.AttributeValueMemberS{Value: id}}
}

func (s *Store) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.Files),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, repository.ErrNotFound
	}
	return unmarshalFile(out.Item)
}

func (s *Store) Put(ctx context.Context, f *model.FileRecord) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Files),
		Item:      marshalFile(f),
	})
	if err != nil {
		return fmt.Errorf("dynamo: put item: %w", err)
	}
	return nil
}

// UpdateFields issues a single SET update and returns the new item.
// The write is conditioned only on the item existing.
func (s *Store) UpdateFields(ctx context.Context, id string, upd repository.FileUpdate) (*model.FileRecord, error) {
	if upd.Empty() {
		return s.Get(ctx, id)
	}

	expr := "SET "
	values := map[string]dbtypes.AttributeValue{}
	names := map[string]string{}
	sep := ""
	if upd.ExpirationTime != nil {
		expr += "expirationTime = :exp, #ttl = :ttl"
		values[":exp"] = &dbtypes.AttributeValueMemberS{Value: formatTime(*upd.ExpirationTime)}
		values[":ttl"] = numberInt(upd.ExpirationTime.Unix())
		names["#ttl"] = "ttl"
		sep = ", "
	}
	if upd.DownloadCount != nil {
		expr += sep + "downloadCount = :dc"
		values[":dc"] = numberInt(*upd.DownloadCount)
	}

	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.Files),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: values,
		ReturnValues:              dbtypes.ReturnValueAllNew,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("dynamo: update item: %w", err)
	}
	return unmarshalFile(out.Attributes)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Files),
		Key:       idKey(id),
	})
	if err != nil {
		return fmt.Errorf("dynamo: delete item: %w", err)
	}
	return nil
}

// QueryBySpatialKey queries the spatial index, following LastEvaluatedKey until exhausted.
func (s *Store) QueryBySpatialKey(ctx context.Context, key string) ([]*model.FileRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Files),
		IndexName:              aws.String(s.tables.SpatialIndex),
		KeyConditionExpression: aws.String("spatialKey = :sk"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":sk": &dbtypes.AttributeValueMemberS{Value: key},
		},
	}

	items := make([]*model.FileRecord, 0)
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query %s: %w", s.tables.SpatialIndex, err)
		}
		for _, item := range out.Items {
			f, err := unmarshalFile(item)
			if err != nil {
				return nil, err
			}
			items = append(items, f)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// ScanExpired scans the whole table filtering on ttl <= nowEpoch.
func (s *Store) ScanExpired(ctx context.Context, nowEpoch int64) ([]*model.FileRecord, error) {
	in := &dynamodb.ScanInput{
		TableName:                aws.String(s.tables.Files),
		FilterExpression:         aws.String("#ttl <= :now"),
		ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":now": numberInt(nowEpoch),
		},
	}

	items := make([]*model.FileRecord, 0)
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan: %w", err)
		}
		for _, item := range out.Items {
			f, err := unmarshalFile(item)
			if err != nil {
				return nil, err
			}
			items = append(items, f)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tables.Files)})
	if err != nil {
		return fmt.Errorf("dynamo: describe table: %w", err)
	}
	return nil
}

// Touch upserts the device, keeping the first createdAt.
func (s *Store) Touch(ctx context.Context, deviceID string, now time.Time) (*model.Device, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Devices),
		Key: map[string]dbtypes.AttributeValue{
			"deviceId": &dbtypes.AttributeValueMemberS{Value: deviceID},
		},
		UpdateExpression: aws.String("SET createdAt = if_not_exists(createdAt, :now), lastAuthenticated = :now"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":now": &dbtypes.AttributeValueMemberS{Value: formatTime(now)},
		},
		ReturnValues: dbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: touch device: %w", err)
	}

	d := &model.Device{DeviceID: deviceID}
	if d.CreatedAt, err = timeAttr(out.Attributes, "createdAt"); err != nil {
		return nil, err
	}
	if d.LastAuthenticated, err = timeAttr(out.Attributes, "lastAuthenticated"); err != nil {
		return nil, err
	}
	return d, nil
}
