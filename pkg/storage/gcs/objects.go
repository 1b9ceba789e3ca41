package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	storageBase = "https://storage.googleapis.com/storage/v1"
	uploadBase  = "https://storage.googleapis.com/upload/storage/v1"
	publicBase  = "https://storage.googleapis.com"
)

// ObjectInfo describes a stored object after upload.
type ObjectInfo struct {
	Bucket    string
	Name      string
	PublicURL string
	Size      int64
}

// Upload writes data to the bucket under the given object name.
func (b *Bucket) Upload(ctx context.Context, objectName, contentType string, data []byte) (*ObjectInfo, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("gcs bucket not initialized")
	}
	if objectName == "" {
		return nil, errors.New("object name is required")
	}

	token, err := b.client.tokenSource.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf(
		"%s/b/%s/o?uploadType=media&name=%s",
		uploadBase,
		url.PathEscape(b.name),
		url.QueryEscape(objectName),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := b.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("gcs upload", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return &ObjectInfo{
		Bucket:    b.name,
		Name:      objectName,
		PublicURL: b.PublicURL(objectName),
		Size:      int64(len(data)),
	}, nil
}

// Delete removes the object; a missing object is not an error.
func (b *Bucket) Delete(ctx context.Context, objectName string) error {
	if b == nil || b.client == nil {
		return errors.New("gcs bucket not initialized")
	}
	if objectName == "" {
		return errors.New("object name is required")
	}

	token, err := b.client.tokenSource.Token(ctx)
	if err != nil {
		return err
	}

	u := fmt.Sprintf(
		"%s/b/%s/o/%s",
		storageBase,
		url.PathEscape(b.name),
		url.PathEscape(objectName),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return responseError("gcs delete", resp)
	}
	return nil
}

// PublicURL returns the unauthenticated URL for a publicly readable object.
func (b *Bucket) PublicURL(objectName string) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", publicBase, b.name, objectName)
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(body) > 0 {
		return fmt.Errorf("%s failed: %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("%s failed: %s", op, resp.Status)
}
