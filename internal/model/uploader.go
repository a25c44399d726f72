package model

import "context"

// Uploader publishes an encoded task result to its destination.
type Uploader interface {
	Upload(ctx context.Context, raw []byte) error
}

type UploadCloser interface {
	Uploader
	Close() error
}
