// Package filestore keeps the uploaded solution notebooks.
package filestore

import (
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
)

// New returns the file store selected by the configuration.
func New(conf *core.Config) (core.FileStore, error) {
	switch conf.Files.Backend {
	case core.BackendMemory, "":
		return NewMemoryStore(), nil
	case core.BackendMinio:
		return NewMinio(conf)
	}
	return nil, errors.Errorf("unknown files backend: %q", conf.Files.Backend)
}
