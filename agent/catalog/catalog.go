// Package catalog resolves product names and aliases to prices.
package catalog

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PriceNotFound is returned by Lookup when no product matches.
const PriceNotFound = 0

type Config struct {
	Path string `envconfig:"PATH" split_words:"true" default:"data/products.json"`
}

type Product struct {
	Name    string   `mapstructure:"nombre_oficial"`
	Aliases []string `mapstructure:"alias"`
	Price   int      `mapstructure:"precio"`
}

type catalogFile struct {
	Products []Product `mapstructure:"productos"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	products []Product
	index    map[string]int
}

func New(products []Product) *Catalog {
	c := &Catalog{
		products: products,
		index:    make(map[string]int, len(products)*2),
	}
	for i, p := range products {
		c.register(p.Name, i)
		for _, alias := range p.Aliases {
			c.register(alias, i)
		}
	}
	return c
}

func (c *Catalog) register(name string, idx int) {
	key := normalize(name)
	if key == "" {
		return
	}
	if _, exists := c.index[key]; exists {
		log.Warn().Str("name", name).Msg("duplicate catalog name or alias, keeping first")
		return
	}
	c.index[key] = idx
}

// Load reads the catalog file (json or yaml, by extension).
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("products", len(file.Products)).Msg("catalog loaded")
	return New(file.Products), nil
}

// Lookup returns the price for an official name or alias, matched
// case-insensitively after trimming. Unknown names yield PriceNotFound.
func (c *Catalog) Lookup(name string) int {
	if c == nil {
		return PriceNotFound
	}
	idx, ok := c.index[normalize(name)]
	if !ok {
		log.Warn().Str("item", name).Msg("product not found in catalog")
		return PriceNotFound
	}
	return c.products[idx].Price
}

// Resolve is Lookup plus the official product name.
func (c *Catalog) Resolve(name string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	idx, ok := c.index[normalize(name)]
	if !ok {
		return Product{}, false
	}
	return c.products[idx], true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
