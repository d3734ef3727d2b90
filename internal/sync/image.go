package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/store"
)

// ImageSyncer uploads images whose parent inspection form already has
// a server id.
type ImageSyncer struct {
	store     store.Store
	client    api.Client
	batchSize int
	logger    *slog.Logger
}

// NewImageSyncer creates the image upload use case.
func NewImageSyncer(s store.Store, c api.Client, batchSize int) *ImageSyncer {
	return &ImageSyncer{
		store:     s,
		client:    c,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "image-sync"),
	}
}

// SyncBatch uploads up to one batch of eligible images. A failed image
// releases its lock and the pass moves on; one bad file never blocks
// the rest of the batch.
func (i *ImageSyncer) SyncBatch(ctx context.Context) (Tally, error) {
	images, err := i.store.PendingImages(ctx, i.batchSize)
	if err != nil {
		return Tally{}, fmt.Errorf("failed to list pending images: %w", err)
	}

	var tally Tally
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := i.syncOne(ctx, img); err != nil {
			i.logger.Warn("Image upload failed", "id", img.ID, "form", img.FormUUID, "error", err)
			tally.Failed++
			continue
		}
		tally.Succeeded++
	}
	return tally, nil
}

func (i *ImageSyncer) syncOne(ctx context.Context, img store.UploadableImage) error {
	if err := i.store.MarkImageSyncing(ctx, img.ID, true); err != nil {
		return fmt.Errorf("failed to lock image: %w", err)
	}

	if err := i.upload(ctx, img); err != nil {
		// Release on a detached context so an upload killed by its own
		// deadline still leaves the image eligible for the next pass.
		if unlockErr := i.store.MarkImageSyncing(context.WithoutCancel(ctx), img.ID, false); unlockErr != nil {
			i.logger.Error("Failed to release image lock", "id", img.ID, "error", unlockErr)
		}
		return err
	}

	if err := i.store.MarkImageSynced(ctx, img.ID); err != nil {
		return fmt.Errorf("failed to mark image synced: %w", err)
	}
	return nil
}

func (i *ImageSyncer) upload(ctx context.Context, img store.UploadableImage) error {
	path := strings.TrimPrefix(img.FileURI, "file://")
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	return i.client.SubmitImage(ctx, img.FormServerID, filepath.Base(path), file)
}
