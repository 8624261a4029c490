package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/tempo/internal/logging"
	"github.com/me/tempo/pkg/model"
)

type fakePutter struct {
	calls []*s3.PutObjectInput
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func terminalInstance() *model.Instance {
	return &model.Instance{
		ID:        "abc",
		TaskID:    "daily-etl",
		CycleID:   "2026-03-01T00:00",
		Attempt:   1,
		State:     model.InstanceSucceeded,
		Queue:     "default",
		CreatedAt: time.Now().UTC(),
	}
}

func TestS3SinkUploadsTerminalInstance(t *testing.T) {
	fake := &fakePutter{}
	sink := &S3Sink{client: fake, bucket: "b", prefix: "tempo", logger: logging.Discard()}

	sink.TerminalTransition(context.Background(), terminalInstance())

	if len(fake.calls) != 1 {
		t.Fatalf("got %d puts, want 1", len(fake.calls))
	}
	call := fake.calls[0]
	if *call.Bucket != "b" {
		t.Errorf("bucket = %s", *call.Bucket)
	}
	wantKey := "tempo/instances/2026-03-01T00:00/daily-etl-1.json"
	if *call.Key != wantKey {
		t.Errorf("key = %s, want %s", *call.Key, wantKey)
	}

	body, err := io.ReadAll(call.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var got model.Instance
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.TaskID != "daily-etl" || got.State != model.InstanceSucceeded {
		t.Errorf("archived record mismatch: %+v", got)
	}
}

func TestS3SinkSwallowsUploadErrors(t *testing.T) {
	fake := &fakePutter{err: errors.New("boom")}
	sink := &S3Sink{client: fake, bucket: "b", logger: logging.Discard()}

	// Must not panic or propagate.
	sink.TerminalTransition(context.Background(), terminalInstance())

	if len(fake.calls) != 1 {
		t.Fatalf("got %d puts, want 1", len(fake.calls))
	}
}
