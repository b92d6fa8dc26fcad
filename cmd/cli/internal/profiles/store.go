package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/docsign/internal/pki"
	"gopkg.in/yaml.v3"
)

const configFile = "profiles.yaml"

// Sentinel errors
var (
	// ErrProfileNotFound is returned when a profile doesn't exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileExists is returned when trying to create a duplicate.
	ErrProfileExists = errors.New("profile already exists")

	// ErrNoDefaultProfile is returned when no default is set.
	ErrNoDefaultProfile = errors.New("no default profile set")
)

// Profile is a named set of certificate identity fields and key parameters used by issue.
type Profile struct {
	Name      string       `yaml:"name"`
	Identity  pki.Identity `yaml:"identity"`
	Bits      int          `yaml:"bits,omitempty"`
	Days      int          `yaml:"days,omitempty"`
	CreatedAt time.Time    `yaml:"created_at"`
	UpdatedAt time.Time    `yaml:"updated_at"`
}

// Validate checks the profile name and identity.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if p.Bits != 0 && !pki.ValidKeySize(p.Bits) {
		return fmt.Errorf("%w: %d", pki.ErrUnsupportedKeySize, p.Bits)
	}
	if p.Days < 0 {
		return fmt.Errorf("%w: days must be positive", pki.ErrInvalidValidityWindow)
	}
	return p.Identity.Validate()
}

// Config represents the profiles configuration file.
type Config struct {
	Version        int                `yaml:"version"`
	DefaultProfile string             `yaml:"default_profile,omitempty"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Store manages identity profiles on the local filesystem.
type Store struct {
	baseDir string
	now     func() time.Time
}

// NewStore creates a new profile store.
// If baseDir is empty, uses ~/.docsign/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".docsign")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}

	store := &Store{baseDir: baseDir, now: time.Now}

	// Initialize config if it doesn't exist
	if err := store.ensureConfig(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("profile store initialized")

	return store, nil
}

// Create stores a new profile.
func (s *Store) Create(p Profile) (*Profile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	if _, ok := cfg.Profiles[p.Name]; ok {
		return nil, ErrProfileExists
	}

	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cfg.Profiles[p.Name] = p

	// First profile becomes the default
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = p.Name
	}

	if err := s.saveConfig(cfg); err != nil {
		return nil, err
	}

	log.Info().Str("name", p.Name).Msg("profile created")

	return &p, nil
}

// Get retrieves a profile by name.
func (s *Store) Get(name string) (*Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	p, ok := cfg.Profiles[name]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

// Delete removes a profile, clearing the default when it pointed at it.
func (s *Store) Delete(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if _, ok := cfg.Profiles[name]; !ok {
		return ErrProfileNotFound
	}

	delete(cfg.Profiles, name)
	if cfg.DefaultProfile == name {
		cfg.DefaultProfile = ""
	}

	if err := s.saveConfig(cfg); err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("profile deleted")

	return nil
}

// SetDefault marks a profile as the default.
func (s *Store) SetDefault(name string) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}

	if _, ok := cfg.Profiles[name]; !ok {
		return ErrProfileNotFound
	}

	cfg.DefaultProfile = name
	return s.saveConfig(cfg)
}

// GetDefault returns the default profile.
func (s *Store) GetDefault() (*Profile, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.DefaultProfile == "" {
		return nil, ErrNoDefaultProfile
	}

	p, ok := cfg.Profiles[cfg.DefaultProfile]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

// Resolve returns the named profile, or the default when name is empty. A missing default is
// not an error.
func (s *Store) Resolve(name string) (*Profile, error) {
	if name != "" {
		return s.Get(name)
	}
	p, err := s.GetDefault()
	if errors.Is(err, ErrNoDefaultProfile) {
		return nil, nil
	}
	return p, err
}

// LoadFile reads a single profile from a standalone YAML file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile file: %w", err)
	}
	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) configPath() string {
	return filepath.Join(s.baseDir, configFile)
}

func (s *Store) ensureConfig() error {
	if _, err := os.Stat(s.configPath()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}

	return s.saveConfig(&Config{Version: 1, Profiles: make(map[string]Profile)})
}

func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	return &cfg, nil
}

// saveConfig writes the config atomically via a temp file and rename.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := s.configPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, s.configPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
