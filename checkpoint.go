package gdalfade

import "context"

// NoopCheckpoint 不等待人工编辑
type NoopCheckpoint struct{}

func (NoopCheckpoint) Await(ctx context.Context, linesPath string) error {
	return ctx.Err()
}

// CheckpointFunc 将函数适配为EditCheckpoint
type CheckpointFunc func(ctx context.Context, linesPath string) error

func (f CheckpointFunc) Await(ctx context.Context, linesPath string) error {
	return f(ctx, linesPath)
}
