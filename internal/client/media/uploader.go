// Package media implements the upload step that produces Media references.
// Each file goes to its own object key through a presigned PUT, so uploads
// never contend with each other or with the document.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/netx"
	"github.com/dmitrijs2005/docsync/internal/timex"
	"github.com/google/uuid"
)

const DefaultPresignExpiry = 15 * time.Minute

var (
	ErrNoBucket = errors.New("media: bucket is not configured")
	ErrEmpty    = errors.New("media: file is empty")
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

// presigner is the part of s3.PresignClient the uploader needs.
type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config describes the object store that receives media files.
type Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key.
	Prefix string
	// PublicURL is the base the stored url is resolved against. When empty
	// the url is the object key rooted at "/".
	PublicURL string
	Expiry    time.Duration

	HTTPClient *http.Client
	Clock      timex.Clock
	Logger     logging.Logger
}

type Uploader struct {
	cfg     Config
	presign presigner
	http    *http.Client
	clock   timex.Clock
	logger  logging.Logger
}

// NewUploader builds an S3 presign client from cfg. Static credentials are
// used when AccessKey is set, the default AWS chain otherwise.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newUploader(cfg, s3.NewPresignClient(client)), nil
}

func newUploader(cfg Config, p presigner) *Uploader {
	u := &Uploader{cfg: cfg, presign: p, http: cfg.HTTPClient, clock: cfg.Clock, logger: cfg.Logger}
	if u.cfg.Expiry <= 0 {
		u.cfg.Expiry = DefaultPresignExpiry
	}
	if u.clock == nil {
		u.clock = timex.Real()
	}
	if u.logger == nil {
		u.logger = logging.Nop()
	}
	u.logger = u.logger.With("module", "media_uploader")
	return u
}

// Upload stores data under a fresh key and returns the Media reference
// describing it. name is the original file name; its extension picks the
// content type and media type.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte) (models.Media, error) {
	if len(data) == 0 {
		return models.Media{}, ErrEmpty
	}
	contentType := ContentType(name, data)
	key := u.storageKey(name)

	req, err := u.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(u.cfg.Expiry))
	if err != nil {
		return models.Media{}, fmt.Errorf("media: presign %s: %w", key, err)
	}

	if err := netx.UploadPresigned(ctx, u.http, req.URL, contentType, data); err != nil {
		return models.Media{}, fmt.Errorf("media: upload %s: %w", key, err)
	}
	u.logger.Info(ctx, "media uploaded", "key", key, "size", len(data), "content_type", contentType)

	return models.Media{
		Type: TypeOf(contentType),
		URL:  u.publicURL(key),
		Name: path.Base(name),
		Size: int64(len(data)),
	}, nil
}

// storageKey returns prefix/yyyy/mm/dd/<uuid><ext>.
func (u *Uploader) storageKey(name string) string {
	d := u.clock.Now().UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), strings.ToLower(path.Ext(name)))
	if p := strings.Trim(u.cfg.Prefix, "/"); p != "" {
		key = p + "/" + key
	}
	return key
}

func (u *Uploader) publicURL(key string) string {
	if u.cfg.PublicURL == "" {
		return "/" + key
	}
	return strings.TrimRight(u.cfg.PublicURL, "/") + "/" + key
}

// ContentType guesses the MIME type of a file from its extension, then from
// its first bytes.
func ContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	ct := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return netx.DefaultContentType
}

// TypeOf maps a MIME type to a media type.
func TypeOf(contentType string) models.MediaType {
	major, _, _ := strings.Cut(contentType, "/")
	switch major {
	case "image":
		return models.MediaTypeImage
	case "video":
		return models.MediaTypeVideo
	case "audio":
		return models.MediaTypeAudio
	default:
		return models.MediaTypeGeneric
	}
}
