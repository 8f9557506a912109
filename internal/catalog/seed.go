package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// ErrInvalidSeed wraps validation failures of a seed document.
var ErrInvalidSeed = errors.New("invalid catalog seed")

// Seed is the YAML document products and seed users are read from.
type Seed struct {
	Products []SeedProduct `yaml:"products"`
	Users    []SeedUser    `yaml:"users"`
}

// SeedProduct is the YAML shape of a product.
type SeedProduct struct {
	ID              string                 `yaml:"id"`
	Name            string                 `yaml:"name"`
	Description     string                 `yaml:"description"`
	PriceCents      int64                  `yaml:"price_cents"`
	Images          []string               `yaml:"images"`
	Category        string                 `yaml:"category"`
	Stock           int                    `yaml:"stock"`
	EcoFriendliness int                    `yaml:"eco_friendliness"`
	ImageHint       string                 `yaml:"image_hint"`
	Reviews         []domain.ProductReview `yaml:"reviews"`
}

// SeedUser is a user created by the seed command when missing.
type SeedUser struct {
	ID        string   `yaml:"id"`
	Username  string   `yaml:"username"`
	Name      string   `yaml:"name"`
	Bio       string   `yaml:"bio"`
	AvatarURL string   `yaml:"avatar_url"`
	Followers int64    `yaml:"followers"`
	EcoPoints int64    `yaml:"eco_points"`
	Favorites []string `yaml:"favorites"`
}

// User converts the seed entry to a directory row.
func (u SeedUser) User() domain.User {
	bio := u.Bio
	if bio == "" {
		bio = domain.DefaultBio
	}
	return domain.User{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Bio:       bio,
		AvatarURL: u.AvatarURL,
		Followers: u.Followers,
		EcoPoints: u.EcoPoints,
	}
}

// Product converts the seed entry to a catalog product.
func (p SeedProduct) Product() domain.Product {
	return domain.Product{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		PriceCents:      p.PriceCents,
		Images:          p.Images,
		Category:        p.Category,
		Stock:           p.Stock,
		EcoFriendliness: p.EcoFriendliness,
		ImageHint:       p.ImageHint,
		Reviews:         p.Reviews,
	}
}

// LoadSeed reads the seed at path, or the embedded default when path is empty.
func LoadSeed(path string) (Seed, error) {
	raw := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Seed{}, err
		}
		raw = b
	}
	return ParseSeed(raw)
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(raw []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := s.validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func (s Seed) validate() error {
	seen := make(map[string]struct{}, len(s.Products))
	for i, p := range s.Products {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: product %d needs id and name", ErrInvalidSeed, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate product id %q", ErrInvalidSeed, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.PriceCents < 0 || p.Stock < 0 {
			return fmt.Errorf("%w: product %q has a negative price or stock", ErrInvalidSeed, p.ID)
		}
		if p.EcoFriendliness < 0 || p.EcoFriendliness > 100 {
			return fmt.Errorf("%w: product %q eco_friendliness must be 0-100", ErrInvalidSeed, p.ID)
		}
		for _, r := range p.Reviews {
			if r.Rating < 1 || r.Rating > 5 {
				return fmt.Errorf("%w: review %q rating must be 1-5", ErrInvalidSeed, r.ID)
			}
		}
	}
	for i, u := range s.Users {
		if u.ID == "" || u.Username == "" {
			return fmt.Errorf("%w: user %d needs id and username", ErrInvalidSeed, i)
		}
	}
	return nil
}
