package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mira-agent/internal/domain"
)

const (
	// chartCacheTTL is the validity window of a generated chart artifact.
	chartCacheTTL = 30 * 24 * time.Hour
	// signedURLTTL is the validity of a minted chart read URL.
	signedURLTTL = 24 * time.Hour

	chartContentType = "image/svg+xml"
)

// ProfileStore provides the natal-data record and its chart cache fields.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, bool, error)
	UpdateChartCache(ctx context.Context, userID, s3Path string, generatedAt int64, chartJSON string) error
}

// ChartGenerator is the upstream chart computation client.
type ChartGenerator interface {
	GenerateChart(ctx context.Context, profile domain.UserProfile) (domain.ChartArtifact, error)
}

// ObjectStore persists rendered chart images and mints read URLs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	SignedURL(ctx context.Context, key string, expires time.Duration) string
}

// ChartResult is the orchestrator's answer: the structured chart payload, a
// viewable URL for the rendered image, and whether the cache served it.
type ChartResult struct {
	Data     domain.ChartData
	URL      string
	CacheHit bool
}

// ChartService decides cache hit/miss/stale, drives regeneration through
// the upstream client, and persists new artifacts.
//
// Concurrent requests for the same user that both observe a miss are not
// mutually excluded: both regenerate, both artifacts are written, and the
// profile pointer goes to whichever update lands last. The cost is one
// wasted upstream call; both artifacts stay readable.
type ChartService struct {
	profiles  ProfileStore
	generator ChartGenerator
	objects   ObjectStore
	now       func() time.Time
}

// NewChartService creates a ChartService.
func NewChartService(profiles ProfileStore, generator ChartGenerator, objects ObjectStore) (*ChartService, error) {
	if profiles == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	if generator == nil {
		return nil, errors.New("usecase: chart generator must not be nil")
	}
	if objects == nil {
		return nil, errors.New("usecase: object store must not be nil")
	}
	return &ChartService{
		profiles:  profiles,
		generator: generator,
		objects:   objects,
		now:       time.Now,
	}, nil
}

// GetOrGenerate returns the user's chart, serving a valid cached artifact
// without contacting the upstream service, and otherwise regenerating,
// persisting the image, and overwriting the profile's cache fields.
func (s *ChartService) GetOrGenerate(ctx context.Context, profile domain.UserProfile) (ChartResult, error) {
	if cached, ok := s.cachedChart(profile); ok {
		url := s.objects.SignedURL(ctx, profile.ChartS3Path, signedURLTTL)
		slog.Info("chart cache hit", "user_id", profile.UserID, "key", profile.ChartS3Path)
		return ChartResult{Data: cached, URL: url, CacheHit: true}, nil
	}

	slog.Info("chart cache miss, generating", "user_id", profile.UserID)

	artifact, err := s.generator.GenerateChart(ctx, profile)
	if err != nil {
		return ChartResult{}, fmt.Errorf("usecase: generate chart: %w", err)
	}

	timestamp := s.now().Unix()
	key := chartObjectKey(profile.UserID, timestamp)

	if err := s.objects.Put(ctx, key, []byte(artifact.SVG), chartContentType); err != nil {
		return ChartResult{}, fmt.Errorf("usecase: persist chart image: %w", err)
	}
	url := s.objects.SignedURL(ctx, key, signedURLTTL)

	chartJSON, err := json.Marshal(artifact.Data)
	if err != nil {
		return ChartResult{}, fmt.Errorf("usecase: encode chart data: %w", err)
	}
	if err := s.profiles.UpdateChartCache(ctx, profile.UserID, key, timestamp, string(chartJSON)); err != nil {
		return ChartResult{}, fmt.Errorf("usecase: update chart cache: %w", err)
	}

	return ChartResult{Data: artifact.Data, URL: url, CacheHit: false}, nil
}

// cachedChart reports whether the profile holds a valid cached artifact:
// all three cache fields present and younger than the TTL. A stored payload
// that no longer decodes is treated as a miss.
func (s *ChartService) cachedChart(profile domain.UserProfile) (domain.ChartData, bool) {
	if profile.ChartS3Path == "" || profile.ChartGeneratedAt == 0 || profile.ChartDataCached == "" {
		return domain.ChartData{}, false
	}
	age := s.now().Unix() - profile.ChartGeneratedAt
	if age >= int64(chartCacheTTL/time.Second) {
		return domain.ChartData{}, false
	}

	var data domain.ChartData
	if err := json.Unmarshal([]byte(profile.ChartDataCached), &data); err != nil {
		slog.Warn("cached chart payload undecodable, regenerating", "user_id", profile.UserID, "err", err)
		return domain.ChartData{}, false
	}
	return data, true
}

func chartObjectKey(userID string, timestamp int64) string {
	return fmt.Sprintf("charts/%s/%d.svg", userID, timestamp)
}
