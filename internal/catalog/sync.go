package catalog

import (
	"log/slog"

	"github.com/starford/tablekit/internal/datasource"
	"github.com/starford/tablekit/internal/storage"
)

// Sync walks the workspace and brings the catalog up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the catalog
//
// When two files map to the same resource name (a.csv and a.json) the first
// one in walk order wins and the other is skipped.
func Sync(db *DB, store storage.Provider, format datasource.Format, logger *slog.Logger) error {
	files, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	names := make(map[string]string, len(files))
	for _, f := range files {
		name := storage.ResourceName(f.Path)
		if prev, dup := names[name]; dup {
			logger.Warn("sync: duplicate resource name",
				slog.String("name", name),
				slog.String("path", f.Path),
				slog.String("kept", prev))
			continue
		}
		names[name] = f.Path
		disk[f.Path] = struct{}{}

		if checksums[f.Path] == f.Checksum {
			continue
		}

		if _, err := IngestFile(db, store, f.Path, format); err != nil {
			logger.Warn("sync: ingest failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: ingested", slog.String("path", f.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if _, err := db.DeletePath(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}
