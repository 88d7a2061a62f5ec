// Package avatar maps avatar selector tokens to stored images and voices.
package avatar

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"selfintro-bot/internal/domain"
)

//go:embed avatars.yaml
var builtin []byte

type catalogFile struct {
	Avatars map[string]domain.AvatarProfile `yaml:"avatars"`
}

// Catalog is an immutable token → profile table.
type Catalog struct {
	profiles map[string]domain.AvatarProfile
	tokens   []string
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(builtin)
}

// Load reads a catalog from a YAML file, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("avatar: read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("avatar: decode catalog: %w", err)
	}
	if len(f.Avatars) == 0 {
		return nil, errors.New("avatar: catalog has no avatars")
	}

	c := &Catalog{profiles: make(map[string]domain.AvatarProfile, len(f.Avatars))}
	for token, p := range f.Avatars {
		token = strings.TrimSpace(token)
		if token == "" || p.ImageKey == "" || p.VoiceID == "" {
			return nil, fmt.Errorf("avatar: incomplete entry %q", token)
		}
		c.profiles[token] = p
		c.tokens = append(c.tokens, token)
	}
	sort.Strings(c.tokens)
	return c, nil
}

// Lookup resolves a selector token.
func (c *Catalog) Lookup(token string) (domain.AvatarProfile, bool) {
	p, ok := c.profiles[strings.TrimSpace(token)]
	return p, ok
}

// Tokens lists the known selector tokens in a stable order.
func (c *Catalog) Tokens() []string {
	return append([]string(nil), c.tokens...)
}
