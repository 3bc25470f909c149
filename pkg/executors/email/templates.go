package email

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrTemplateNotFound = errors.New("email template not found")

// Template is a stored email layout. Every field is a text/template rendered
// against the trigger context; HTMLBody is rendered with html/template.
type Template struct {
	ID         string   `yaml:"id"`
	Subject    string   `yaml:"subject"`
	TextBody   string   `yaml:"text_body"`
	HTMLBody   string   `yaml:"html_body"`
	Recipients []string `yaml:"recipients"`
	CC         []string `yaml:"cc"`
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// FileTemplateStore serves templates from a YAML file loaded once at startup.
type FileTemplateStore struct {
	mu        sync.RWMutex
	path      string
	templates map[string]Template
}

func NewFileTemplateStore(path string) (*FileTemplateStore, error) {
	store := &FileTemplateStore{path: path}
	if err := store.Reload(); err != nil {
		return nil, err
	}

	return store, nil
}

// Reload re-reads the YAML file.
func (s *FileTemplateStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read email templates: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse email templates %s: %w", s.path, err)
	}

	templates := make(map[string]Template, len(file.Templates))

	for _, tmpl := range file.Templates {
		if tmpl.ID == "" {
			return fmt.Errorf("email template without id in %s", s.path)
		}

		if _, dup := templates[tmpl.ID]; dup {
			return fmt.Errorf("duplicate email template id %q in %s", tmpl.ID, s.path)
		}

		templates[tmpl.ID] = tmpl
	}

	s.mu.Lock()
	s.templates = templates
	s.mu.Unlock()

	return nil
}

func (s *FileTemplateStore) GetTemplate(_ context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	return &tmpl, nil
}
