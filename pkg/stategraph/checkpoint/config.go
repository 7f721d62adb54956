package checkpoint

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph/config"
)

// FromConfig opens the store described by cfg.
//
//	type: sqlite          # memory (default) or sqlite
//	path: ./threads.db    # sqlite only, defaults to :memory:
func FromConfig(cfg config.Config) (Store, error) {
	switch kind := strings.ToLower(cfg.String("type", "memory")); kind {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.String("path", ":memory:"))
	default:
		return nil, fmt.Errorf("unknown checkpoint store type %q", kind)
	}
}
