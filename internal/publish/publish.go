package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cruciblehq/cruxgate/internal/build"
	"github.com/cruciblehq/cruxgate/internal/recipe"
	"github.com/cruciblehq/cruxgate/internal/report"
)

const (
	AccessKeyEnv = "CRUXGATE_S3_ACCESS_KEY"
	SecretKeyEnv = "CRUXGATE_S3_SECRET_KEY"

	contentType = "application/json"
)

// Subset of the minio client used for uploads.
type putter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploads reports to a single bucket.
type Uploader struct {
	client putter
	bucket string
	prefix string
}

// Returns an uploader for the recipe's publish target, taking credentials
// from the environment.
func FromEnv(cfg recipe.Publish) (*Uploader, error) {
	access := os.Getenv(AccessKeyEnv)
	secret := os.Getenv(SecretKeyEnv)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("%w: set %s and %s", ErrCredentials, AccessKeyEnv, SecretKeyEnv)
	}
	return New(cfg, access, secret)
}

// Returns an uploader for the given target and static credentials.
func New(cfg recipe.Publish, accessKey, secretKey string) (*Uploader, error) {
	if strings.Contains(cfg.Endpoint, "://") {
		return nil, fmt.Errorf("%w: endpoint must not include scheme: %q", ErrPublish, cfg.Endpoint)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	return &Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Uploads the report as JSON.
func (u *Uploader) Publish(ctx context.Context, rep *report.Report) error {
	data, err := report.Marshal(rep)
	if err != nil {
		return err
	}

	key := objectKey(u.prefix, rep.Recipe, rep.BuildID)
	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrPublish, u.bucket, key, err)
	}

	slog.Info("report published", "bucket", u.bucket, "key", key)
	return nil
}

func objectKey(prefix, name, buildID string) string {
	return strings.TrimPrefix(path.Join(prefix, name, buildID, report.JSONFile), "/")
}

// Returns the report publisher configured by r, or nil when the recipe has
// no publish target or its credentials are missing.
func ForRecipe(r *recipe.Recipe) build.Publisher {
	if r.Publish == nil {
		return nil
	}
	up, err := FromEnv(*r.Publish)
	if err != nil {
		slog.Warn("report publishing disabled", "error", err)
		return nil
	}
	return up
}
