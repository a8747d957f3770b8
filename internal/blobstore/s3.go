// Package blobstore хранит вложения тендеров в S3-совместимом хранилище.
// Для остального кода это непрозрачный коллаборатор: байты на входе,
// пара url+имя на выходе.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Attachment — то, что сохраняется в тендере: ссылка и отображаемое имя.
type Attachment struct {
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
}

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

type S3Store struct {
	client *s3.Client
	cfg    Config
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO и прочие self-hosted хранилища живут без DNS-бакетов.
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, cfg: cfg}, nil
}

// Store кладёт объект и возвращает ссылку с отображаемым именем.
func (s *S3Store) Store(ctx context.Context, name string, data []byte, contentType string) (*Attachment, error) {
	key := storageKey()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: put object: %w", err)
	}

	base := strings.TrimSuffix(s.cfg.Endpoint, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.Bucket, s.cfg.Region)
		return &Attachment{URL: base + "/" + key, DisplayName: name}, nil
	}
	return &Attachment{URL: fmt.Sprintf("%s/%s/%s", base, s.cfg.Bucket, key), DisplayName: name}, nil
}

// storageKey раскладывает объекты по датам, имя объекта не переиспользуется.
func storageKey() string {
	d := time.Now()
	return fmt.Sprintf("attachments/%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.New())
}
