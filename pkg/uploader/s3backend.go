package uploader

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/blockpack/blockpack/pkg/pipeline"
	"github.com/blockpack/blockpack/pkg/volume/indexaccum"
)

// s3PartSize is the threshold at or above which PutVolume switches from a
// single PutObject to a multipart upload, and the size of each uploaded part.
const s3PartSize = 8 << 20 // 8MiB

// S3BackendConfig configures an S3Backend.
type S3BackendConfig struct {
	// Bucket is the destination S3 bucket. Required.
	Bucket string
	// Prefix is prepended to every object key, e.g. "blockpack/".
	Prefix string
	// Region is the AWS region. Empty defers to the default credential
	// chain's region resolution.
	Region string
	// Endpoint overrides the default S3 endpoint, for S3-compatible stores
	// (e.g. MinIO) used in tests. Empty uses AWS's endpoint.
	Endpoint string
	// ForcePathStyle is needed by most S3-compatible endpoints.
	ForcePathStyle bool
	// AccessKeyID / SecretAccessKey, if both set, use static credentials
	// instead of the default provider chain.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Backend uploads volumes to Amazon S3 or an S3-compatible store, using
// multipart upload for volumes at or above s3PartSize. Grounded on the
// teacher's S3ContentStore multipart plumbing (pkg/store/content/s3), pared
// down to what a single-shot volume upload needs: no incremental writer, no
// buffered deletion queue, no storage-stats cache.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend builds an S3Backend from cfg, loading AWS credentials as
// static credentials when both keys are given, otherwise from the default
// provider chain.
func NewS3Backend(ctx context.Context, cfg S3BackendConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("uploader: s3 backend: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("uploader: s3 backend: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) key(remoteFilename string) string {
	if b.prefix == "" {
		return remoteFilename
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + remoteFilename
}

// PutVolume uploads req.Volume under its remote filename, and, if
// req.IndexAccu is present, synthesizes and uploads a sibling "<name>.index"
// object describing its entries.
func (b *S3Backend) PutVolume(ctx context.Context, req pipeline.VolumeUploadRequest) error {
	var buf bytes.Buffer
	if _, err := req.Volume.CopyTo(ctx, &buf); err != nil {
		return fmt.Errorf("uploader: s3 backend: read volume: %w", err)
	}

	key := b.key(req.Volume.RemoteFilename())
	if err := b.put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("uploader: s3 backend: put volume: %w", err)
	}

	if req.IndexAccu == nil {
		return nil
	}
	return b.putIndexVolume(ctx, key, req.IndexAccu)
}

func (b *S3Backend) putIndexVolume(ctx context.Context, volumeKey string, accu *indexaccum.Accumulator) error {
	if err := accu.Seal(); err != nil {
		return fmt.Errorf("uploader: s3 backend: seal index: %w", err)
	}

	var buf bytes.Buffer
	err := accu.Entries(func(e indexaccum.Entry) error {
		_, err := fmt.Fprintf(&buf, "%s %d %d\n", e.HashKey, e.Size, len(e.Data))
		return err
	})
	if err != nil {
		return fmt.Errorf("uploader: s3 backend: encode index: %w", err)
	}

	if err := b.put(ctx, volumeKey+".index", buf.Bytes()); err != nil {
		return fmt.Errorf("uploader: s3 backend: put index: %w", err)
	}
	return nil
}

// put uploads data under key, using a single PutObject below s3PartSize and
// a multipart upload at or above it.
func (b *S3Backend) put(ctx context.Context, key string, data []byte) error {
	if len(data) < s3PartSize {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return err
	}
	return b.putMultipart(ctx, key, data)
}

func (b *S3Backend) putMultipart(ctx context.Context, key string, data []byte) error {
	created, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	parts, err := b.uploadParts(ctx, key, *uploadID, data)
	if err != nil {
		_, abortErr := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(b.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			return fmt.Errorf("%w (abort also failed: %v)", err, abortErr)
		}
		return err
	}

	sort.Slice(parts, func(i, j int) bool { return *parts[i].PartNumber < *parts[j].PartNumber })

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

func (b *S3Backend) uploadParts(ctx context.Context, key, uploadID string, data []byte) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart
	partNumber := int32(1)

	for offset := 0; offset < len(data); offset += s3PartSize {
		end := offset + s3PartSize
		if end > len(data) {
			end = len(data)
		}

		result, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(b.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data[offset:end]),
		})
		if err != nil {
			return nil, fmt.Errorf("upload part %d: %w", partNumber, err)
		}

		parts = append(parts, types.CompletedPart{
			ETag:       result.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++
	}

	return parts, nil
}
