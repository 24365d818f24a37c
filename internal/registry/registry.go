package registry

import (
	"context"
	"errors"

	"github.com/linch-mind/daemon/internal/connector"
)

// ErrNotFound is returned when no descriptor exists for an id.
var ErrNotFound = errors.New("registry: connector not found")

// Store persists connector registrations so installed connectors survive a
// daemon restart. Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	SaveDescriptor(ctx context.Context, d connector.Descriptor) error
	GetDescriptor(ctx context.Context, id string) (connector.Descriptor, error)
	ListDescriptors(ctx context.Context) ([]connector.Descriptor, error)
	DeleteDescriptor(ctx context.Context, id string) error
	Close() error
}
