// Package catalog resolves product and variation ids against the shop catalog.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Kerhoff/wishlist/internal/models"
)

// Lookup resolves a product or variation id. Unknown ids yield nil, nil.
type Lookup interface {
	Resolve(ctx context.Context, id int64) (*models.Product, error)
}

// Static serves a fixed set of products from memory.
type Static struct {
	mu       sync.RWMutex
	products map[int64]*models.Product
}

// NewStatic indexes the given products by id.
func NewStatic(products ...*models.Product) *Static {
	s := &Static{products: make(map[int64]*models.Product, len(products))}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

// Put adds or replaces a product.
func (s *Static) Put(p *models.Product) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *p
	s.products[p.ID] = &copied
}

func (s *Static) Resolve(_ context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

// Len returns the number of indexed products and variations.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

type fileProduct struct {
	models.Product `yaml:",inline"`
	Variations     []models.Product `yaml:"variations"`
}

type fileCatalog struct {
	Products []fileProduct `yaml:"products"`
}

// Parse reads a YAML catalog document. Variations inherit their parent id.
func Parse(data []byte) (*Static, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	s := NewStatic()
	for i := range doc.Products {
		p := doc.Products[i].Product
		if p.ID <= 0 {
			return nil, fmt.Errorf("catalog product %d has no id", i)
		}
		s.Put(&p)
		for _, v := range doc.Products[i].Variations {
			if v.ID <= 0 {
				return nil, fmt.Errorf("variation of product %d has no id", p.ID)
			}
			v.ParentID = p.ID
			s.Put(&v)
		}
	}
	return s, nil
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}
