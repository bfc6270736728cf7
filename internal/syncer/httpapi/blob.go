package httpapi

import (
	"context"
	"net/http"

	"github.com/quillnote/core/internal/netx"
)

// BlobSlot is a reserved location for an attachment blob: the stable
// reference stored on the file record plus a pre-authorized upload URL.
type BlobSlot struct {
	BlobRef   string `json:"blob_ref"`
	UploadURL string `json:"upload_url"`
}

// CreateBlob reserves storage for an attachment of the given size.
func (c *Client) CreateBlob(ctx context.Context, size int64) (*BlobSlot, error) {
	req := struct {
		Size int64 `json:"size"`
	}{Size: size}
	var slot BlobSlot
	if err := c.do(ctx, http.MethodPost, "/api/v1/blobs", req, &slot, true); err != nil {
		return nil, err
	}
	return &slot, nil
}

// UploadBlob transfers sealed attachment bytes to a reserved slot.
func (c *Client) UploadBlob(ctx context.Context, uploadURL string, blob []byte) error {
	return netx.UploadBlob(ctx, c.http, uploadURL, blob)
}
