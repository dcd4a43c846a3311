// Package backup writes point-in-time JSON snapshots of an operator's
// contacts and labels to S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"crmoverlay/api/internal/store"
)

// Snapshot is the stored document.
type Snapshot struct {
	Operator string          `json:"operator"`
	TakenAt  time.Time       `json:"takenAt"`
	Contacts []store.Contact `json:"contacts"`
	Labels   []store.Label   `json:"labels"`
}

// Info describes a stored snapshot.
type Info struct {
	Bucket string    `json:"bucket"`
	Key    string    `json:"key"`
	Size   int64     `json:"size"`
	At     time.Time `json:"at"`
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Snapshotter uploads snapshots into one bucket.
type Snapshotter struct {
	client objectStore
	bucket string
	logger *zap.Logger
	now    func() time.Time
}

// Options configures the object storage connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to the endpoint. The bucket is created on first upload.
func New(opts Options, logger *zap.Logger) (*Snapshotter, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return newSnapshotter(client, opts.Bucket, logger), nil
}

func newSnapshotter(client objectStore, bucket string, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{client: client, bucket: bucket, logger: logger, now: time.Now}
}

// Save uploads one snapshot under <operator>/snapshot-<timestamp>.json.
func (s *Snapshotter) Save(ctx context.Context, operator string, contacts []store.Contact, labels []store.Label) (Info, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return Info{}, err
	}
	at := s.now().UTC()
	if contacts == nil {
		contacts = []store.Contact{}
	}
	if labels == nil {
		labels = []store.Label{}
	}
	payload, err := json.Marshal(Snapshot{Operator: operator, TakenAt: at, Contacts: contacts, Labels: labels})
	if err != nil {
		return Info{}, fmt.Errorf("encode snapshot: %w", err)
	}

	key := objectKey(operator, at)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return Info{}, fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	s.logger.Info("snapshot stored",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("contacts", len(contacts)),
		zap.Int("labels", len(labels)))
	return Info{Bucket: s.bucket, Key: info.Key, Size: info.Size, At: at}, nil
}

// List returns the operator's snapshots, oldest first.
func (s *Snapshotter) List(ctx context.Context, operator string) ([]Info, error) {
	var out []Info
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix(operator), Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list snapshots: %w", obj.Err)
		}
		out = append(out, Info{Bucket: s.bucket, Key: obj.Key, Size: obj.Size, At: obj.LastModified})
	}
	return out, nil
}

func (s *Snapshotter) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func prefix(operator string) string {
	operator = strings.Trim(strings.TrimSpace(operator), "/")
	if operator == "" {
		operator = "default"
	}
	return operator + "/"
}

func objectKey(operator string, at time.Time) string {
	return prefix(operator) + "snapshot-" + at.Format("20060102T150405.000Z") + ".json"
}
