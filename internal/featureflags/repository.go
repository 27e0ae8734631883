package featureflags

import "context"

// Repository persists flag values.
type Repository interface {
	// LoadFlags returns every stored flag.
	LoadFlags(ctx context.Context) (map[string]*Flag, error)

	// SaveFlags stores flags and records change, all or nothing.
	SaveFlags(ctx context.Context, flags []*Flag, change Change) error
}
