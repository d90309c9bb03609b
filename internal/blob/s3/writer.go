package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minPartSize is the minimum allowed S3 multipart part size (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter over an S3-compatible backend.
type Writer struct {
	client *s3.Client
	bucket string
}

// NewWriter creates a Writer that uploads to the client's configured bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c.S3(), bucket: c.Bucket()}
}

// Put uploads body as a single PutObject request. Archive objects are small
// enough for a one-shot upload; larger payloads go through the multipart
// manager, which splits and uploads parts concurrently.
func (w *Writer) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if int64(len(body)) > minPartSize {
		uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
			u.PartSize = minPartSize
		})
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(w.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("s3blob: multipart put %s: %w", key, err)
		}
		return nil
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}
