package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/nodeid"
)

// ValidateRegistry builds one throwaway node of every registered type and
// reports every type whose setup fails.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	for _, name := range r.Types() {
		probe := nodeid.MustParse("validate_0").Child(nodeid.NewSegment(nodeid.PrefixFor(name)))
		w, err := r.MakeNode(ctx, probe, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("node type '%s': %w", name, err))
			continue
		}
		w.Destroy()
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("Registry validation failed.", "error", err)
		return err
	}
	logger.Debug("Registry validation successful.", "types", len(r.Types()))
	return nil
}
