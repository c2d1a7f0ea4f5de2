package location

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
)

// FileSource reads saved locations from a JSON file maintained by the UI.
// A missing file is treated as "no locations", not an error, so the daemon
// can start before the user has saved anything.
type FileSource struct {
	path string

	mu sync.Mutex
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) GetLocations(ctx context.Context) ([]Location, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var locs []Location
	if err := json.Unmarshal(b, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}
