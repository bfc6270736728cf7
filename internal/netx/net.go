// Package netx holds small HTTP helpers that sit outside the JSON API:
// direct blob transfer against pre-authorized URLs.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadBlob PUTs an encrypted attachment blob to a pre-authorized upload
// URL. The URL itself carries the authorization, so no session token is
// attached.
func UploadBlob(ctx context.Context, client *http.Client, url string, blob []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
