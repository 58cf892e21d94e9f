package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gagyebu/internal/log"
)

// S3Config configures the archive bucket. Static keys are optional; without them the
// default AWS credential chain is used.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      aws.HTTPClient
}

// S3Sink stores each month as records/YYYY-MM.csv.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	logger *log.Logger
}

var _ Sink = (*S3Sink)(nil)

func NewS3Sink(ctx context.Context, cfg S3Config, logger *log.Logger) (*S3Sink, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible stores reject the streaming checksum trailer.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})

	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.WithComponent(log.ComponentExport),
	}, nil
}

func (s *S3Sink) Name() string { return "s3" }

// Key is the object key a month is stored under.
func (s *S3Sink) Key(snap Snapshot) string {
	return path.Join(s.prefix, "records", snap.Label()+".csv")
}

func (s *S3Sink) Write(ctx context.Context, snap Snapshot) error {
	var buf bytes.Buffer
	if err := snap.WriteCSV(&buf); err != nil {
		return err
	}
	key := s.Key(snap)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv; charset=utf-8"),
		Metadata: map[string]string{
			"records":      strconv.Itoa(len(snap.Records)),
			"generated-at": snap.At.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "Stored month archive", "key", key, "bytes", buf.Len())
	return nil
}
