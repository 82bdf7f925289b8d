package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"tracecollapse/internal/models"
)

// DirSource reads one trace per JSON file below a directory.
type DirSource struct {
	root    string
	pattern string
	fsys    fs.FS
	logger  *slog.Logger
}

// NewDirSource matches pattern (doublestar syntax) below root.
func NewDirSource(root, pattern string, logger *slog.Logger) *DirSource {
	if pattern == "" {
		pattern = "**/*.json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{
		root:    root,
		pattern: pattern,
		fsys:    os.DirFS(root),
		logger:  logger,
	}
}

// Name implements Source.
func (d *DirSource) Name() string {
	return "dir:" + d.root
}

// Load decodes every matching file in lexical path order. A file that cannot
// be read or parsed yields a Record carrying the error.
func (d *DirSource) Load(ctx context.Context) ([]Record, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("trace directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("trace directory: %s is not a directory", d.root)
	}

	matches, err := doublestar.Glob(d.fsys, d.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", d.pattern, err)
	}
	sort.Strings(matches)

	d.logger.Debug("Matched trace files", "dir", d.root, "pattern", d.pattern, "files", len(matches))

	records := make([]Record, 0, len(matches))
	for _, name := range matches {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		origin := filepath.Join(d.root, filepath.FromSlash(name))
		trace, err := d.readFile(name)
		if err != nil {
			records = append(records, Record{Origin: origin, Err: err})
			continue
		}
		records = append(records, Record{Origin: origin, Trace: trace})
	}

	return records, nil
}

func (d *DirSource) readFile(name string) (models.TraceRecord, error) {
	data, err := fs.ReadFile(d.fsys, name)
	if err != nil {
		return models.TraceRecord{}, fmt.Errorf("failed to read trace file: %w", err)
	}

	var file models.TraceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return models.TraceRecord{}, fmt.Errorf("failed to parse trace file: %w", err)
	}
	return file.Trace, nil
}
