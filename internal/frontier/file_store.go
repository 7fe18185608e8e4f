package frontier

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
)

const (
	fieldSeparator = ", "
	statusTrue     = "True"
	statusFalse    = "False"
)

// fileStore keeps the frontier as `url, label, True|False` lines. Every write replaces the
// whole file through a temp file and rename.
type fileStore struct {
	path string
	mu   sync.Mutex
}

func openFile(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create frontier directory: %w", err)
		}
	}
	return &fileStore{path: path}, nil
}

func (f *fileStore) Close() error { return nil }

func (f *fileStore) Load() ([]domain.FrontierEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *fileStore) AppendNew(candidates []domain.FrontierEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		known[e.URL] = struct{}{}
	}

	added := newEntries(known, candidates)
	if len(added) == 0 {
		return 0, nil
	}
	if err := f.write(append(entries, added...)); err != nil {
		return 0, err
	}
	return len(added), nil
}

func (f *fileStore) Pending() ([]domain.FrontierEntry, error) {
	entries, err := f.Load()
	if err != nil {
		return nil, err
	}
	return pendingOf(entries), nil
}

func (f *fileStore) Label(url string) (string, bool, error) {
	entries, err := f.Load()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.URL == url {
			return e.Label, true, nil
		}
	}
	return "", false, nil
}

func (f *fileStore) MarkScraped(url string) error {
	return f.mutate(func(entries []domain.FrontierEntry) error {
		for i := range entries {
			if entries[i].URL == url {
				entries[i].Scraped = true
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownURL, url)
	})
}

func (f *fileStore) ResetAll() error {
	return f.mutate(func(entries []domain.FrontierEntry) error {
		for i := range entries {
			entries[i].Scraped = false
		}
		return nil
	})
}

// mutate reads the whole file, applies fn in memory and writes everything back.
func (f *fileStore) mutate(fn func([]domain.FrontierEntry) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	if err := fn(entries); err != nil {
		return err
	}
	return f.write(entries)
}

func (f *fileStore) read() ([]domain.FrontierEntry, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read frontier file: %w", err)
	}

	var entries []domain.FrontierEntry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; scanner.Scan(); n++ {
		entry, err := parseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.path, n, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan frontier file: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (domain.FrontierEntry, error) {
	parts := strings.Split(strings.TrimSpace(line), fieldSeparator)
	if len(parts) != 3 {
		return domain.FrontierEntry{}, fmt.Errorf("%w: want 3 fields, got %d in %q", ErrCorruptEntry, len(parts), line)
	}

	var scraped bool
	switch parts[2] {
	case statusTrue:
		scraped = true
	case statusFalse:
	default:
		return domain.FrontierEntry{}, fmt.Errorf("%w: unknown status %q", ErrCorruptEntry, parts[2])
	}
	return domain.FrontierEntry{URL: parts[0], Label: parts[1], Scraped: scraped}, nil
}

func formatLine(e domain.FrontierEntry) string {
	status := statusFalse
	if e.Scraped {
		status = statusTrue
	}
	return e.URL + fieldSeparator + e.Label + fieldSeparator + status
}

func (f *fileStore) write(entries []domain.FrontierEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(formatLine(e))
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create frontier temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write frontier temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync frontier temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close frontier temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace frontier file: %w", err)
	}
	return nil
}
