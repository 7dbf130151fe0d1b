package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/campusnet/backend/internal/config"
	"github.com/campusnet/backend/internal/moderation"
)

const policyContentType = "application/yaml"

// ObjectPutter uploads a document to an object store.
type ObjectPutter interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}

func publishPolicy(ctx context.Context, path string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Moderation.ObjectStore.Bucket == "" {
		return errors.New("publishing a policy requires CAMPUSNET_MODERATION_S3_BUCKET")
	}

	objects, err := openObjectStore(ctx, cfg.Moderation.ObjectStore)
	if err != nil {
		return err
	}
	n, err := uploadPolicy(ctx, objects, path, cfg.Moderation.ObjectStore.Key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "published %d terms to s3://%s/%s\n", n, cfg.Moderation.ObjectStore.Bucket, cfg.Moderation.ObjectStore.Key)
	return nil
}

// uploadPolicy validates the policy file at path by compiling it and writes its normalized form
// to key. It returns the number of distinct terms published.
func uploadPolicy(ctx context.Context, objects ObjectPutter, path, key string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read policy %s: %w", path, err)
	}
	terms, err := moderation.ParsePolicy(data)
	if err != nil {
		return 0, err
	}
	filter, err := moderation.NewFilter(terms)
	if err != nil {
		return 0, err
	}
	if filter.Len() == 0 {
		return 0, moderation.ErrEmptyPolicy
	}

	encoded, err := moderation.EncodePolicy(filter.Terms())
	if err != nil {
		return 0, err
	}
	if err := objects.Put(ctx, key, bytes.NewReader(encoded), policyContentType); err != nil {
		return 0, fmt.Errorf("upload policy: %w", err)
	}
	return filter.Len(), nil
}
