package position

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/fsutil"
)

type slot struct {
	mu       sync.Mutex
	path     string
	lastSeen int64 // timestamp of the newest document written or published
}

// Store persists one document per Kind. Each kind has its own lock; a
// document is always replaced whole.
type Store struct {
	dir    string
	slots  map[Kind]*slot
	logger *log.Logger
}

// NewStore returns a store writing into dir.
func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, fsutil.DirPerms); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Store{
		dir:    dir,
		slots:  make(map[Kind]*slot, len(Kinds)),
		logger: logger,
	}
	for _, k := range Kinds {
		s.slots[k] = &slot{path: filepath.Join(dir, k.File())}
	}
	return s, nil
}

// Dir returns the directory holding the documents.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) slot(kind Kind) (*slot, error) {
	sl, ok := s.slots[kind]
	if !ok {
		return nil, fmt.Errorf("unknown position kind %q", kind)
	}
	return sl, nil
}

// Get returns the stored document, or Default(kind) when none exists.
func (s *Store) Get(kind Kind) (Document, error) {
	sl, err := s.slot(kind)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.read(kind)
}

// Set replaces the stored document of doc's kind.
func (s *Store) Set(doc Document) error {
	sl, err := s.slot(doc.Kind())
	if err != nil {
		return err
	}

	data, err := marshal(doc, "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s position: %w", doc.Kind(), err)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := fsutil.WriteFile(sl.path, data); err != nil {
		return fmt.Errorf("failed to save %s position: %w", doc.Kind(), err)
	}
	sl.lastSeen = doc.Stamp()
	return nil
}

// refresh rereads the document and reports whether it is newer than
// anything this store wrote or already returned from refresh.
func (s *Store) refresh(kind Kind) (Document, bool, error) {
	sl, err := s.slot(kind)
	if err != nil {
		return nil, false, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	doc, err := sl.read(kind)
	if err != nil {
		return nil, false, err
	}
	if doc.Stamp() == sl.lastSeen {
		return doc, false, nil
	}
	sl.lastSeen = doc.Stamp()
	return doc, true, nil
}

// read is called with sl.mu held.
func (sl *slot) read(kind Kind) (Document, error) {
	data, err := os.ReadFile(sl.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(kind), nil
		}
		return nil, fmt.Errorf("failed to read %s position: %w", kind, err)
	}

	doc, err := decode(kind, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s position: %w", kind, err)
	}
	return doc, nil
}
