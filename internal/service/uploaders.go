package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/openrelik/chopchopgo-worker/internal/model"
)

// Uploaders builds the publication chain from config. Without results
// configuration the encoded result goes to stdout.
func Uploaders(cfg *model.Results) ([]model.Uploader, error) {
	if cfg == nil || (cfg.Dir == "" && cfg.URL == "") {
		return []model.Uploader{NewWriteUploader(os.Stdout)}, nil
	}

	var uploaders []model.Uploader
	if cfg.Dir != "" {
		u, err := NewOSRootUploader(cfg.Dir)
		if err != nil {
			return nil, err
		}
		uploaders = append(uploaders, u)
	}
	if cfg.URL != "" {
		u, err := NewResultUploader(cfg.URL)
		if err != nil {
			return nil, err
		}
		uploaders = append(uploaders, u)
	}
	return uploaders, nil
}

type WriteUploader struct {
	w io.Writer
}

func NewWriteUploader(w io.Writer) WriteUploader {
	return WriteUploader{w: w}
}

func (u WriteUploader) Upload(_ context.Context, raw []byte) error {
	if u.w == nil {
		u.w = os.Stdout
	}
	_, err := u.w.Write(raw)
	return err
}

// OSRootUploader stores encoded results as files under a directory.
type OSRootUploader struct {
	root *os.Root
}

func NewOSRootUploader(path string) (*OSRootUploader, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &OSRootUploader{root: root}, nil
}

func (u *OSRootUploader) Upload(ctx context.Context, b []byte) error {
	if u.root == nil {
		return errors.New("root already closed")
	}

	path := "chopchopgo-" + time.Now().Format("2006-01-02-15-04-05") + ".result"

	f, err := u.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	_, err = f.Write(b)
	if err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing result file: %w", err)
	}
	slog.InfoContext(ctx, "result saved", "path", path)
	return nil
}

func (u *OSRootUploader) Close() error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}
	err := u.root.Close()
	u.root = nil
	return err
}
