package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"secure-upload/internal/domain/upload"
	upload_errors "secure-upload/pkg/errors"
	"secure-upload/pkg/logger"
)

const (
	DefaultPartSize     = 5 * 1024 * 1024
	defaultRetryLimit   = 3
	defaultRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// MultipartUploader splits a byte stream into fixed-size parts and
// drives the initiate / upload-part / complete-or-abort protocol
// sequentially. Parts are numbered from 1 with no gaps, and their ETags
// are handed to complete in ascending index order. Any failure after
// initiate aborts the upload exactly once before surfacing.
type MultipartUploader struct {
	api          S3API
	bucket       string
	partSize     int64
	retryLimit   int
	retryBackoff time.Duration
	logger       *logger.Logger
}

func NewMultipartUploader(api S3API, bucket string, partSize int64, retryLimit int, retryBackoff time.Duration, l *logger.Logger) *MultipartUploader {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}
	return &MultipartUploader{
		api:          api,
		bucket:       bucket,
		partSize:     partSize,
		retryLimit:   retryLimit,
		retryBackoff: retryBackoff,
		logger:       l,
	}
}

// Upload streams r to the object store under key, reading one part-size
// window at a time. totalSize is the exact stream length; the final part
// may be smaller than the configured part size. onPart, if non-nil, is
// called with the running committed byte count after each part upload.
func (u *MultipartUploader) Upload(ctx context.Context, key, contentType, originalFilename string, r io.Reader, totalSize int64, onPart func(uploaded int64)) error {
	token, err := u.initiate(ctx, key, contentType, originalFilename)
	if err != nil {
		return err
	}

	chunks, err := u.uploadParts(ctx, token, key, r, totalSize, onPart)
	if err != nil {
		u.abort(ctx, token, key)
		return err
	}

	if err := u.complete(ctx, token, key, chunks); err != nil {
		u.abort(ctx, token, key)
		return err
	}
	return nil
}

func (u *MultipartUploader) initiate(ctx context.Context, key, contentType, originalFilename string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if originalFilename != "" {
		input.Metadata = map[string]string{"original_filename": originalFilename}
	}

	output, err := u.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: initiate %s: %v", upload_errors.ErrTransport, key, err)
	}
	return aws.ToString(output.UploadId), nil
}

func (u *MultipartUploader) uploadParts(ctx context.Context, token, key string, r io.Reader, totalSize int64, onPart func(uploaded int64)) ([]upload.ChunkDescriptor, error) {
	numParts := int32((totalSize + u.partSize - 1) / u.partSize)
	if numParts == 0 {
		numParts = 1
	}

	chunks := make([]upload.ChunkDescriptor, 0, numParts)
	buf := make([]byte, u.partSize)

	var uploaded int64
	for index := int32(1); index <= numParts; index++ {
		size := u.partSize
		if remaining := totalSize - uploaded; remaining < size {
			size = remaining
		}
		if _, err := io.ReadFull(r, buf[:size]); err != nil {
			return nil, fmt.Errorf("%w: reading part %d: %v", upload_errors.ErrIO, index, err)
		}

		chunk := upload.ChunkDescriptor{
			Index:  index,
			Offset: uploaded,
			Size:   size,
			Status: upload.ChunkPending,
		}

		etag, err := u.uploadPartWithRetry(ctx, token, key, index, buf[:size])
		if err != nil {
			chunk.Status = upload.ChunkFailed
			return nil, err
		}
		chunk.ETag = etag
		chunk.Status = upload.ChunkUploaded
		chunks = append(chunks, chunk)

		uploaded += size
		if onPart != nil {
			onPart(uploaded)
		}
		if u.logger != nil {
			u.logger.Infof("uploaded part %d/%d (%d bytes) for %s", index, numParts, size, key)
		}
	}
	return chunks, nil
}

func (u *MultipartUploader) uploadPartWithRetry(ctx context.Context, token, key string, index int32, data []byte) (string, error) {
	var lastErr error
	backoff := u.retryBackoff
	for attempt := 1; attempt <= u.retryLimit; attempt++ {
		output, err := u.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(u.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(token),
			PartNumber: aws.Int32(index),
			Body:       bytes.NewReader(data),
		})
		if err == nil {
			return aws.ToString(output.ETag), nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		if u.logger != nil {
			u.logger.Warnf("part %d upload attempt %d/%d failed: %s", index, attempt, u.retryLimit, err)
		}
		if attempt == u.retryLimit {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: part %d: %v", upload_errors.ErrTransport, index, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
	return "", fmt.Errorf("%w: part %d: %v", upload_errors.ErrTransport, index, lastErr)
}

func (u *MultipartUploader) complete(ctx context.Context, token, key string, chunks []upload.ChunkDescriptor) error {
	parts := make([]awstypes.CompletedPart, len(chunks))
	for i, chunk := range chunks {
		parts[i] = awstypes.CompletedPart{
			ETag:       aws.String(chunk.ETag),
			PartNumber: aws.Int32(chunk.Index),
		}
	}

	_, err := u.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(token),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: complete %s: %v", upload_errors.ErrTransport, key, err)
	}
	return nil
}

// abort releases stored parts for a failed upload. Failure to abort is
// logged, not surfaced: the original error matters more to the caller.
func (u *MultipartUploader) abort(ctx context.Context, token, key string) {
	_, err := u.api.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(token),
	})
	if err != nil && u.logger != nil {
		u.logger.Errorf("abort of multipart upload %s for %s failed: %s", token, key, err)
	}
}

func isTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
