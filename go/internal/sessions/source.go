package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mcdev12/musicbingo/go/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrSessionNotFound is returned when no configuration exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// Source serves prepared session configurations. The runtime never writes to it.
type Source interface {
	Get(ctx context.Context, id string) (*models.SessionConfig, error)
}

// Catalogue is the on-disk YAML layout.
type Catalogue struct {
	Sessions []models.SessionConfig `yaml:"sessions"`
}

// ParseCatalogue decodes and validates a YAML session catalogue.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse session catalogue: %w", err)
	}
	for i := range c.Sessions {
		c.Sessions[i].ApplyDefaults()
		if err := c.Sessions[i].Validate(); err != nil {
			return nil, fmt.Errorf("session %q: %w", c.Sessions[i].ID, err)
		}
	}
	return &c, nil
}

// FileSource reads sessions from a YAML file, loaded once on first use.
type FileSource struct {
	path string

	once     sync.Once
	sessions map[string]models.SessionConfig
	err      error
}

// NewFileSource creates a source backed by the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("failed to read session file: %w", err)
		return
	}
	c, err := ParseCatalogue(data)
	if err != nil {
		f.err = err
		return
	}
	f.sessions = make(map[string]models.SessionConfig, len(c.Sessions))
	for _, s := range c.Sessions {
		f.sessions[s.ID] = s
	}
}

// Get returns a copy of the session configuration.
func (f *FileSource) Get(_ context.Context, id string) (*models.SessionConfig, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return &s, nil
}
