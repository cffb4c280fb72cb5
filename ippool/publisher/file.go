package publisher

import (
	"context"

	"cfip_nexus/ippool/storage"
)

// FileTarget writes the artifact to local disk.
type FileTarget struct {
	store storage.Storage
}

func NewFileTarget(store storage.Storage) *FileTarget {
	return &FileTarget{store: store}
}

func (f *FileTarget) Name() string { return "file" }

func (f *FileTarget) Publish(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.store.Save(string(p.Artifact))
}
