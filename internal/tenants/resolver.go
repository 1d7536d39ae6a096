package tenants

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/wabaledger/pkg/logger"
)

// Resolver maps webhook hints to the owning business.
type Resolver interface {
	Resolve(ctx context.Context, hints Hints) (uuid.UUID, bool, error)
}

type resolver struct {
	dir  Directory
	logg *logger.Logger
}

// NewResolver builds a Resolver over dir.
func NewResolver(dir Directory, logg *logger.Logger) Resolver {
	return &resolver{dir: dir, logg: logg}
}

// Resolve walks the hints in fixed precedence and returns the first match.
// A lookup error on one hint does not stop lower-precedence hints from being
// tried; errors are only returned when nothing resolved.
func (r *resolver) Resolve(ctx context.Context, hints Hints) (uuid.UUID, bool, error) {
	var errs error
	for _, kind := range precedence {
		value := hints.value(kind)
		if value == "" {
			continue
		}
		businessID, ok, err := r.dir.Lookup(ctx, kind, value)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			if r.logg != nil {
				r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
					"business_id": businessID.String(),
					"hint_kind":   string(kind),
				}), "tenant resolved")
			}
			return businessID, true, nil
		}
	}
	return uuid.Nil, false, errs
}
