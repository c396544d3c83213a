// Package storage connects the object storage for source and result images
package storage

import (
	"context"
	"time"

	"github.com/UnendingLoop/TextWatermark/internal/storage/miniostorage"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

// NewImgStorage подключается к MinIO, повторяя попытки до успеха или отмены контекста
func NewImgStorage(ctx context.Context, cfg *config.Config, delay time.Duration) (*miniostorage.MinioImageStorage, error) {
	for {
		zlog.Logger.Info().Msg("Connecting to IMG-storage...")
		client, err := miniostorage.NewMinioClient(ctx, cfg)
		if err == nil {
			zlog.Logger.Info().Msg("Successfully connected IMG-storage!")
			return client, nil
		}
		zlog.Logger.Error().Err(err).Dur("retry_in", delay).Msg("Failed to init connection to IMG-storage")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
