package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mira-agent/internal/domain"
)

// ProfileStore wraps the DynamoDB table that holds user natal data and the
// chart cache pointer fields.
type ProfileStore struct {
	api       dynamodbAPI
	tableName string
}

// NewProfileStore creates a ProfileStore for the given table.
func NewProfileStore(api dynamodbAPI, tableName string) (*ProfileStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ProfileStore{api: api, tableName: tableName}, nil
}

// GetProfile fetches a user profile. The second return value reports whether
// a record exists for the user.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (domain.UserProfile, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("repository: GetProfile get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UserProfile{}, false, nil
	}

	generatedAt, err := intAttr(out.Item, "chart_generated_at")
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("repository: GetProfile: %w", err)
	}

	return domain.UserProfile{
		UserID:           strAttr(out.Item, "user_id"),
		FirstName:        strAttr(out.Item, "first_name"),
		LastName:         strAttr(out.Item, "last_name"),
		BirthDate:        strAttr(out.Item, "birth_date"),
		BirthTime:        strAttr(out.Item, "birth_time"),
		BirthLocation:    strAttr(out.Item, "birth_location"),
		BirthCountry:     strAttr(out.Item, "birth_country"),
		ZodiacSign:       strAttr(out.Item, "zodiac_sign"),
		ChartS3Path:      strAttr(out.Item, "chart_s3_path"),
		ChartGeneratedAt: generatedAt,
		ChartDataCached:  strAttr(out.Item, "chart_data_cached"),
	}, true, nil
}

// UpdateChartCache overwrites the three chart cache fields on the profile.
// The write is a best-effort overwrite; it is not transactional with the
// object-storage put that precedes it.
func (s *ProfileStore) UpdateChartCache(ctx context.Context, userID, s3Path string, generatedAt int64, chartJSON string) error {
	if userID == "" {
		return errors.New("repository: UpdateChartCache: user id is required")
	}

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String(
			"SET chart_s3_path = :path, chart_generated_at = :ts, chart_data_cached = :data, updated_at = :updated",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":path":    &types.AttributeValueMemberS{Value: s3Path},
			":ts":      numAttr(generatedAt),
			":data":    &types.AttributeValueMemberS{Value: chartJSON},
			":updated": numAttr(generatedAt),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateChartCache: %w", err)
	}
	return nil
}
