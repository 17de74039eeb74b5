package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"
)

type storageOps struct {
	upload    func(path, contentType string, body io.Reader) error
	signedURL func(path string, expiresIn int) (string, error)
	remove    func(paths []string) error
}

// Storage implements domain.ObjectStorage on a private Supabase Storage bucket
type Storage struct {
	ops    storageOps
	guard  *guard
	logger *slog.Logger
}

// NewStorage connects with the service role key; objects are only reachable through signed URLs
func NewStorage(cfg Config, logger *slog.Logger) (*Storage, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("supabase url, service role key and bucket are required")
	}
	client, err := supa.NewClient(cfg.URL, cfg.ServiceRoleKey, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	bucket := cfg.Bucket
	ops := storageOps{
		upload: func(path, contentType string, body io.Reader) error {
			upsert := false
			_, err := client.Storage.UploadFile(bucket, path, body, storage_go.FileOptions{
				ContentType: &contentType,
				Upsert:      &upsert,
			})
			return err
		},
		signedURL: func(path string, expiresIn int) (string, error) {
			resp, err := client.Storage.CreateSignedUrl(bucket, path, expiresIn)
			if err != nil {
				return "", err
			}
			return resp.SignedURL, nil
		},
		remove: func(paths []string) error {
			_, err := client.Storage.RemoveFile(bucket, paths)
			return err
		},
	}
	return newStorage(ops, logger), nil
}

func newStorage(ops storageOps, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{ops: ops, guard: newGuard("supabase-storage", logger), logger: logger}
}

// Upload stores body at path. The body is buffered so retries can replay it.
func (s *Storage) Upload(ctx context.Context, path, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	_, err = run(ctx, s.guard, "upload", func() (struct{}, error) {
		return struct{}{}, s.ops.upload(path, contentType, bytes.NewReader(data))
	})
	if err != nil {
		s.logger.Error("object upload failed", slog.String("path", path), slog.String("error", err.Error()))
		return upstream("upload", err)
	}
	return nil
}

// SignedURL returns a time-limited download link
func (s *Storage) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	url, err := run(ctx, s.guard, "signed_url", func() (string, error) {
		return s.ops.signedURL(path, seconds)
	})
	if err != nil {
		return "", upstream("signed url", err)
	}
	return url, nil
}

// Remove deletes objects
func (s *Storage) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := run(ctx, s.guard, "remove", func() (struct{}, error) {
		return struct{}{}, s.ops.remove(paths)
	})
	if err != nil {
		return upstream("remove", err)
	}
	return nil
}
