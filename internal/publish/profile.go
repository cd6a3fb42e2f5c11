package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides for the publish profile.
const EnvPrefix = "PUBLISH_"

// DefaultExcludes are paths never shipped in the archive.
var DefaultExcludes = []string{".git/**", "node_modules/**"}

// Profile describes where and how to publish the bot.
type Profile struct {
	Name     string        `koanf:"name"`
	Root     string        `koanf:"root"`
	Archive  string        `koanf:"archive"`
	Endpoint string        `koanf:"endpoint"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Exclude  []string      `koanf:"exclude"`
	Timeout  time.Duration `koanf:"timeout"`
	Progress bool          `koanf:"progress"`
}

// DefaultProfile returns a profile with defaults applied.
func DefaultProfile() *Profile {
	return &Profile{
		Name:     "chopibot",
		Root:     ".",
		Exclude:  append([]string(nil), DefaultExcludes...),
		Timeout:  5 * time.Minute,
		Progress: true,
	}
}

// LoadProfile reads the profile from a YAML file, if present, then overlays
// PUBLISH_* environment variables (PUBLISH_ENDPOINT -> endpoint).
func LoadProfile(path string) (*Profile, error) {
	k := koanf.New(".")
	p := DefaultProfile()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading profile %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing profile %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", p); err != nil {
		return nil, fmt.Errorf("unmarshalling profile: %w", err)
	}

	return p, nil
}

// envValue maps PUBLISH_ENDPOINT to endpoint. PUBLISH_EXCLUDE is a comma
// separated list.
func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key != "exclude" {
		return key, value
	}
	var patterns []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return key, patterns
}

// Validate checks that the profile can be published.
func (p *Profile) Validate() error {
	var errs []error
	if p.Name == "" && p.Archive == "" {
		errs = append(errs, errors.New("name or archive is required"))
	}
	if p.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if p.Username == "" || p.Password == "" {
		errs = append(errs, errors.New("username and password are required"))
	}
	return errors.Join(errs...)
}

// ArchivePath resolves the archive location. The default is
// ../<name>.zip relative to the root directory.
func (p *Profile) ArchivePath() (string, error) {
	archive := p.Archive
	if archive == "" {
		archive = filepath.Join(p.Root, "..", p.Name+".zip")
	}
	return filepath.Abs(archive)
}
