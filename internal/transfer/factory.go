package transfer

import (
	"context"
	"fmt"

	"dstash/internal/config"
	"dstash/internal/stash"
)

// NewFromConfig creates a Transfer implementation based on the transfer
// config type.
func NewFromConfig(ctx context.Context, cfg config.TransferConfig) (stash.Transfer, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryTransfer(cfg.MemoryQuota), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 transfer requires s3_bucket to be set")
		}
		return NewS3Transfer(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown transfer type: %s", cfg.Type)
	}
}
