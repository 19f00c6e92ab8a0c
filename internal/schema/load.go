package schema

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/pkg/config"
)

// LoadDir registers every module definition (*.yaml, *.yml) directly under
// dir. A malformed definition fails that module alone and never partially
// registers it; failures come back joined, with the modules that loaded
// cleanly already installed.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &apperr.ConfigError{Source: dir, Reason: err.Error()}
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var mod models.Module
		if err := config.Load(path, &mod); err != nil {
			errs = append(errs, &apperr.ConfigError{Source: path, Reason: err.Error()})
			continue
		}
		if err := r.Register(mod); err != nil {
			errs = append(errs, &apperr.ConfigError{Source: path, Reason: err.Error()})
		}
	}
	return errors.Join(errs...)
}
