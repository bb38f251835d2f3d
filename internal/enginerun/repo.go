package enginerun

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// FileRepository persists records as {engine_run_id}.json in a directory.
type FileRepository struct {
	dir string
}

// NewFileRepository creates the directory if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("engine run dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create engine run dir %s: %w", dir, err)
	}
	return &FileRepository{dir: dir}, nil
}

// Save writes the record atomically (temp file + rename) and returns the
// final path.
func (fr *FileRepository) Save(r *Record) (string, error) {
	raw, err := r.MarshalCanonical()
	if err != nil {
		return "", err
	}
	final := filepath.Join(fr.dir, r.EngineRunID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return "", fmt.Errorf("write engine run %s: %w", r.EngineRunID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("publish engine run %s: %w", r.EngineRunID, err)
	}
	log.Debug().Str("engine_run_id", r.EngineRunID).Str("path", final).Msg("engine run persisted")
	return final, nil
}

// Load reads a record by id.
func (fr *FileRepository) Load(id string) (*Record, error) {
	raw, err := os.ReadFile(filepath.Join(fr.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("load engine run %s: %w", id, err)
	}
	return Unmarshal(raw)
}

// List returns up to limit run ids ordered by modification time, most
// recent first.
func (fr *FileRepository) List(limit int) ([]string, error) {
	entries, err := os.ReadDir(fr.dir)
	if err != nil {
		return nil, fmt.Errorf("list engine runs: %w", err)
	}
	type item struct {
		id  string
		mod int64
	}
	var items []item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{id: strings.TrimSuffix(name, ".json"), mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mod != items[j].mod {
			return items[i].mod > items[j].mod
		}
		return items[i].id < items[j].id
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
