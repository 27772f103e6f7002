// Package storage defines the ciphertext blob boundary. The server never
// proxies file bytes; clients move ciphertext directly via presigned URLs.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// BlobStore is the external blob storage collaborator.
type BlobStore interface {
	// PresignPut returns a URL the client can PUT ciphertext to.
	PresignPut(ctx context.Context, key string) (string, error)
	// PresignGet returns a URL the client can GET ciphertext from.
	PresignGet(ctx context.Context, key string) (string, error)
	// Delete removes the blob at key.
	Delete(ctx context.Context, key string) error
}

// NewKey returns a date-partitioned random storage key.
func NewKey() string {
	d := time.Now()
	return fmt.Sprintf("blobs/%d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.Must(uuid.NewV4()))
}
