package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
)

// BackendEntry overrides the built-in descriptor of one search backend.
type BackendEntry struct {
	Name         string           `yaml:"name"`
	Enabled      *bool            `yaml:"enabled,omitempty"`
	Capabilities []string         `yaml:"capabilities,omitempty"`
	TimeoutMS    int              `yaml:"timeout_ms,omitempty"`
	Scale        domain.ScaleSpec `yaml:"scale,omitempty"`
}

// Catalog is the backend catalogue loaded from BACKENDS_CONFIG_PATH.
type Catalog struct {
	Backends []BackendEntry `yaml:"backends"`
}

// LoadCatalog returns an empty catalogue when the file does not exist.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("read backend catalogue: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse backend catalogue: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Backends))
	for i, entry := range catalog.Backends {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" {
			return Catalog{}, fmt.Errorf("backend catalogue entry %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return Catalog{}, fmt.Errorf("backend %q is listed twice", name)
		}
		seen[name] = struct{}{}
		if err := validateScale(entry.Scale); err != nil {
			return Catalog{}, fmt.Errorf("backend %q: %w", name, err)
		}
		catalog.Backends[i].Name = name
	}
	return catalog, nil
}

func (c Catalog) entry(name string) (BackendEntry, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, e := range c.Backends {
		if e.Name == name {
			return e, true
		}
	}
	return BackendEntry{}, false
}

// Enabled defaults to true for backends the catalogue does not mention.
func (c Catalog) Enabled(name string) bool {
	e, ok := c.entry(name)
	if !ok || e.Enabled == nil {
		return true
	}
	return *e.Enabled
}

// Apply layers catalogue overrides onto a built-in descriptor. The default
// timeout fills in when neither side sets one.
func (c Catalog) Apply(desc domain.BackendDescriptor, defaultTimeout time.Duration) domain.BackendDescriptor {
	if e, ok := c.entry(desc.Name); ok {
		if caps := domain.ParseCapabilities(e.Capabilities); caps != 0 {
			desc.Capabilities = caps
		}
		if e.TimeoutMS > 0 {
			desc.Timeout = time.Duration(e.TimeoutMS) * time.Millisecond
		}
		if e.Scale.Kind != "" {
			desc.Scale = e.Scale
		}
	}
	if desc.Timeout <= 0 {
		desc.Timeout = defaultTimeout
	}
	return desc
}

func validateScale(s domain.ScaleSpec) error {
	switch s.Kind {
	case "", domain.ScaleUnit, domain.ScalePercent, domain.ScaleBoolean:
		return nil
	case domain.ScaleSaturating:
		if s.K < 0 {
			return fmt.Errorf("saturating scale needs k >= 0")
		}
		return nil
	case domain.ScaleRange:
		if s.Max <= 0 {
			return fmt.Errorf("range scale needs max > 0")
		}
		return nil
	default:
		return fmt.Errorf("unknown scale kind %q", s.Kind)
	}
}
