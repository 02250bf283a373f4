package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/chatrelay/internal/server/config"
)

// Open returns the backend selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.StorageBackend {
	case config.StorageFile, "":
		var f *File
		if f, err = NewFile(cfg.DataDir); err == nil {
			s = f
		}
	case config.StorageMemory:
		s = NewMemory()
	case config.StoragePostgres:
		var p *Postgres
		if p, err = OpenPostgres(ctx, cfg.DatabaseDSN); err == nil {
			s = p
		}
	case config.StorageRedis:
		var r *Redis
		if r, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix); err == nil {
			s = r
		}
	case config.StorageS3:
		var o *S3
		o, err = OpenS3(ctx, S3Options{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
		})
		if err == nil {
			s = o
		}
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
	}
	return s, nil
}
