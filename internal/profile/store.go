package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/openmined/bucketsync/internal/utils"
	"gopkg.in/yaml.v3"
)

const FileName = "profiles.json"

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// document is the on-disk layout.
type document struct {
	Profiles []Profile `json:"profiles" yaml:"profiles"`
}

// Store is a file backed list of profiles. Every mutation re-reads the file under an
// exclusive file lock so that two processes sharing the directory do not lose writes.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func NewStore(path string) (*Store, error) {
	resolved, err := utils.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve profile path: %w", err)
	}
	return &Store{
		path: resolved,
		lock: flock.New(resolved + ".lock"),
	}, nil
}

// NewStoreInDir places the profile file inside dir.
func NewStoreInDir(dir string) (*Store, error) {
	return NewStore(filepath.Join(dir, FileName))
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) List() ([]Profile, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Profiles, nil
}

func (s *Store) Get(id string) (*Profile, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	idx := doc.index(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	p := doc.Profiles[idx]
	return &p, nil
}

// Resolve looks a profile up by id first and then by name.
func (s *Store) Resolve(ref string) (*Profile, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if idx := doc.index(ref); idx >= 0 {
		p := doc.Profiles[idx]
		return &p, nil
	}
	for _, p := range doc.Profiles {
		if p.Name == ref {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, ref)
}

// Create assigns a fresh id to p and persists it.
func (s *Store) Create(p Profile) (*Profile, error) {
	p.ID = uuid.NewString()
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.mutate(func(doc *document) error {
		if doc.hasName(p.Name, "") {
			return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		doc.Profiles = append(doc.Profiles, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Update(p Profile) (*Profile, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.mutate(func(doc *document) error {
		idx := doc.index(p.ID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, p.ID)
		}
		if doc.hasName(p.Name, p.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		doc.Profiles[idx] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Delete(id string) error {
	return s.mutate(func(doc *document) error {
		idx := doc.index(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		doc.Profiles = slices.Delete(doc.Profiles, idx, idx+1)
		return nil
	})
}

// Export writes all profiles to w.
func (s *Store) Export(w io.Writer, format Format) error {
	doc, err := s.read()
	if err != nil {
		return err
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// Import merges the profiles read from r. Profiles whose id already exists are replaced,
// the rest are appended. It returns how many profiles were imported.
func (s *Store) Import(r io.Reader, format Format) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	var incoming document
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &incoming)
	case FormatJSON, "":
		err = json.Unmarshal(data, &incoming)
	default:
		return 0, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return 0, fmt.Errorf("decode profiles: %w", err)
	}

	for i := range incoming.Profiles {
		p := &incoming.Profiles[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("profile %q: %w", p.Name, err)
		}
	}

	err = s.mutate(func(doc *document) error {
		for _, p := range incoming.Profiles {
			if idx := doc.index(p.ID); idx >= 0 {
				doc.Profiles[idx] = p
			} else {
				doc.Profiles = append(doc.Profiles, p)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(incoming.Profiles), nil
}

func (s *Store) read() (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) mutate(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock profiles: %w", err)
	}
	defer s.lock.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var doc document
	if len(bytes.TrimSpace(data)) == 0 {
		return &doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	if doc.Profiles == nil {
		doc.Profiles = []Profile{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	_, _, err = utils.WriteFileAtomic(s.path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	// secrets live in this file
	return os.Chmod(s.path, 0o600)
}

func (d *document) index(id string) int {
	return slices.IndexFunc(d.Profiles, func(p Profile) bool { return p.ID == id })
}

func (d *document) hasName(name, exceptID string) bool {
	return slices.ContainsFunc(d.Profiles, func(p Profile) bool {
		return p.Name == name && p.ID != exceptID
	})
}
