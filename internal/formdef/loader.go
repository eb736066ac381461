package formdef

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/rules"
)

// IsDefinitionFile reports whether name has an extension LoadDir reads.
func IsDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadDir reads every definition file in dir. Files that fail to parse or
// validate, and later files reusing an already loaded form id, are skipped
// with a warning; only a directory that cannot be read is an error.
func LoadDir(dir string, logger *zap.Logger) ([]*form.Definition, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read forms dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]string)
	var defs []*form.Definition
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping form definition", zap.String("file", path), zap.Error(err))
			continue
		}
		if prev, ok := seen[def.ID]; ok {
			logger.Warn("skipping form definition (duplicate form id)",
				zap.String("file", path), zap.String("form_id", def.ID), zap.String("first", prev))
			continue
		}
		for _, r := range def.Rules {
			if _, err := rules.CompileExpression(r.Expression); err != nil {
				logger.Warn("expression rule will be ignored",
					zap.String("file", path), zap.String("form_id", def.ID), zap.Error(err))
			}
		}
		seen[def.ID] = path
		defs = append(defs, def)
	}

	logger.Info("loaded form definitions", zap.String("dir", dir), zap.Int("forms", len(defs)))
	return defs, nil
}

// LoadFile decodes and validates one definition file.
func LoadFile(path string) (*form.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def *form.Definition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		def, err = form.Decode(data)
	} else {
		def, err = form.DecodeYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// Reload reads dir and replaces the registry contents.
func Reload(dir string, reg *Registry, logger *zap.Logger) error {
	defs, err := LoadDir(dir, logger)
	if err != nil {
		return err
	}
	reg.Load(defs)
	return nil
}
