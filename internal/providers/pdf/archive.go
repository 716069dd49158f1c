package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/config"
	"go.uber.org/zap"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver keeps a copy of every rendered PDF in S3.
type Archiver struct {
	client objectPutter
	bucket string
	log    *zap.Logger
}

// NewArchiver returns nil when no bucket is configured.
func NewArchiver(cfg config.Config, log *zap.Logger) (*Archiver, error) {
	s3cfg := cfg.S3
	if !s3cfg.Enabled() {
		return nil, nil
	}

	region := s3cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if s3cfg.AccessKey != "" && s3cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKey, s3cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			o.UsePathStyle = true
		}
		if s3cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	log.Info("pdf archive enabled",
		zap.String("bucket", s3cfg.Bucket),
		zap.String("region", region),
		zap.String("endpoint", s3cfg.Endpoint),
	)
	return newArchiver(client, s3cfg.Bucket, log), nil
}

func newArchiver(client objectPutter, bucket string, log *zap.Logger) *Archiver {
	return &Archiver{client: client, bucket: bucket, log: log.Named("pdf.archive")}
}

func ArchiveKey(userID snowflake.ID, fileName string) string {
	return fmt.Sprintf("invoices/%s/%s", userID.String(), strings.TrimPrefix(fileName, "/"))
}

func (a *Archiver) Archive(ctx context.Context, userID snowflake.ID, fileName string, content []byte) (string, error) {
	if a == nil {
		return "", nil
	}
	key := ArchiveKey(userID, fileName)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String("application/pdf"),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}
