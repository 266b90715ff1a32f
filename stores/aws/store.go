package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// s3Store keeps update history under {canvasID}/{ulid} object keys.
// ULID keys sort chronologically, so a prefix listing in key order is
// the history oldest first.
type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based update store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func (s *s3Store) canvasPrefix(canvasID string) (string, error) {
	if canvasID == "" || path.Base(canvasID) != canvasID || canvasID == "." || canvasID == ".." {
		return "", fmt.Errorf("invalid canvas id %q", canvasID)
	}
	return canvasID + "/", nil
}

func (s *s3Store) ListUpdates(ctx context.Context, canvasID string) ([][]byte, error) {
	prefix, err := s.canvasPrefix(canvasID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "prefix": prefix})

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to list canvas updates")
			return nil, fmt.Errorf("failed to list updates for canvas %s: %w", canvasID, err)
		}
		for _, object := range page.Contents {
			keys = append(keys, *object.Key)
		}
	}
	sort.Strings(keys)

	history := make([][]byte, 0, len(keys))
	for _, key := range keys {
		resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			log.WithError(err).Errorf("Failed to get update object %s", key)
			return nil, fmt.Errorf("failed to get update %s: %w", key, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read update %s: %w", key, err)
		}
		history = append(history, data)
	}

	log.WithField("update_count", len(history)).Debug("Listed canvas updates")
	return history, nil
}

func (s *s3Store) AppendUpdate(ctx context.Context, canvasID string, update []byte) error {
	prefix, err := s.canvasPrefix(canvasID)
	if err != nil {
		return err
	}

	key := prefix + ulid.Make().String()
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(update),
	})
	if err != nil {
		return fmt.Errorf("failed to append update for canvas %s: %w", canvasID, err)
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":   canvasID,
		"key":         key,
		"data_length": len(update),
	}).Debug("Update appended")
	return nil
}
