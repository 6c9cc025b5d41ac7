package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"guidebook/internal/domain/service"
)

const gcsHost = "https://storage.googleapis.com/"

// CloudStorageClient keeps chat attachments in a single bucket. Objects
// are public-read since attachment URLs are handed to every room member.
type CloudStorageClient struct {
	client  *storage.Client
	bucket  string
	origins []string
}

func NewCloudStorageClient(ctx context.Context, bucket string, origins []string, opts ...option.ClientOption) (*CloudStorageClient, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	c := &CloudStorageClient{client: client, bucket: bucket, origins: origins}
	if err := c.ensureCORS(ctx); err != nil {
		log.Printf("Warning: bucket %s keeps its CORS rules: %v", bucket, err)
	}
	return c, nil
}

// ensureCORS lets the web client fetch attachments directly. Uploads go
// through the API, so only read methods are opened.
func (c *CloudStorageClient) ensureCORS(ctx context.Context) error {
	if len(c.origins) == 0 {
		return nil
	}
	_, err := c.client.Bucket(c.bucket).Update(ctx, storage.BucketAttrsToUpdate{
		CORS: []storage.CORS{{
			MaxAge:          time.Hour,
			Methods:         []string{"GET", "HEAD"},
			Origins:         c.origins,
			ResponseHeaders: []string{"Content-Type", "Content-Disposition"},
		}},
	})
	return err
}

func (c *CloudStorageClient) UploadFile(ctx context.Context, obj service.UploadObject) (string, error) {
	name := objectPath(obj, time.Now())
	handle := c.client.Bucket(c.bucket).Object(name)

	// A cancelled context is the only way to abandon a partial write.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Object names are never reused, so the content is immutable.
	w := handle.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.ContentDisposition = contentDisposition(obj.FileName)
	w.CacheControl = "public, max-age=31536000, immutable"
	w.Metadata = map[string]string{"owner": obj.OwnerID, "kind": string(obj.Kind)}
	w.PredefinedACL = "publicRead"

	if _, err := io.Copy(w, obj.Content); err != nil {
		cancel()
		w.Close()
		return "", fmt.Errorf("failed to upload %s: %v", obj.FileName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %v", obj.FileName, err)
	}
	return c.urlFor(name), nil
}

func (c *CloudStorageClient) DeleteFile(ctx context.Context, fileURL string) error {
	name, err := objectNameFromURL(fileURL, c.urlFor(""))
	if err != nil {
		return err
	}
	if err := c.client.Bucket(c.bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %v", name, err)
	}
	return nil
}

func (c *CloudStorageClient) urlFor(name string) string {
	return gcsHost + c.bucket + "/" + name
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}
