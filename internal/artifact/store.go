// Package artifact stores the screenshots copied out of automation
// sessions so they outlive the run that produced them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/a3tai/doc-autofill/internal/config"
)

var (
	// ErrNotFound is returned when no artifact has the requested identifier.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidID is returned for identifiers that could escape the store.
	ErrInvalidID = errors.New("invalid artifact id")
)

// Store keeps opaque artifacts by identifier.
type Store interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	// Cleanup removes every stored artifact and reports how many went.
	Cleanup(ctx context.Context) (int, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// NewScreenshotID returns a fresh identifier for a filled-form screenshot.
func NewScreenshotID() string {
	return "form_filled_" + uuid.NewString() + ".png"
}

// ValidID reports whether id is safe to use as a file or object name.
func ValidID(id string) bool {
	return idPattern.MatchString(id) && !strings.Contains(id, "..")
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.ArtifactConfig) (Store, error) {
	switch cfg.Backend {
	case config.ArtifactMinio:
		s, err := NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.ArtifactLocal, "":
		return NewLocalStore(cfg.OutputDir), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}
