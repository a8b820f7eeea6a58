package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Resolve rewrites every relative path in p against baseDir. Absolute
// paths and empty values are left alone.
func (p *PathsConfig) Resolve(baseDir string) {
	for _, field := range []*string{&p.DBFile, &p.RawFile, &p.InteractionMappingFile, &p.MappingsFile} {
		if *field == "" || filepath.IsAbs(*field) {
			continue
		}
		*field = filepath.Join(baseDir, *field)
	}
}

// EnsureDirectories creates the parent directory of the database file so
// the store can create the file itself. Inputs are never created.
func (p *PathsConfig) EnsureDirectories() error {
	dir := filepath.Dir(p.DBFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// LogPaths writes the resolved paths at debug level
func (p *PathsConfig) LogPaths(logger *slog.Logger) {
	logger.Debug("Resolved pipeline paths",
		slog.String("db_file", p.DBFile),
		slog.String("raw_file", p.RawFile),
		slog.String("interaction_mapping_file", p.InteractionMappingFile),
		slog.String("mappings_file", p.MappingsFile))
}
