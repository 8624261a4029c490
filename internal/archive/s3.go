// Package archive persists terminal instance records to object storage for
// audit and offline analysis. Archival is best effort and never blocks or
// fails the scheduler.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/tempo/pkg/model"
)

// putter is the slice of the S3 client the sink uses.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads one JSON document per terminal instance under
// <prefix>/instances/<cycle>/<task>-<attempt>.json.
type S3Sink struct {
	client putter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Sink builds an S3Sink using the default AWS credential chain.
func NewS3Sink(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Sink{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "archive"),
	}, nil
}

// TerminalTransition uploads the instance record. Upload failures are logged
// and dropped; the instance row in the store remains the source of truth.
func (s *S3Sink) TerminalTransition(ctx context.Context, inst *model.Instance) {
	body, err := json.Marshal(inst)
	if err != nil {
		s.logger.Error("marshal instance", "instance_id", inst.ID, "error", err)
		return
	}

	key := path.Join(s.prefix, "instances", inst.CycleID,
		fmt.Sprintf("%s-%d.json", inst.TaskID, inst.Attempt))
	contentType := "application/json"

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		s.logger.Error("archive upload failed",
			"instance_id", inst.ID,
			"key", key,
			"error", err,
		)
		return
	}
	s.logger.Debug("instance archived", "instance_id", inst.ID, "key", key)
}

// IntegrityWarning is a no-op; only terminal instances are archived.
func (s *S3Sink) IntegrityWarning(_ context.Context, _ *model.CatalogIntegrityError) {}
