// Package filestore abstracts export artifact storage. The engine only needs
// write/read/delete by name; the backing store may be local disk, object
// storage, or memory in tests.
package filestore

import "context"

type Store interface {
	Write(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}
