package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// UncategorizedName labels products without a known category.
const UncategorizedName = "Uncategorized"

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RawCategory accepts id_categoria|id and nombre_categoria|nombre|name.
type RawCategory struct {
	IDCategoria     *int64  `json:"id_categoria,omitempty"`
	ID              *int64  `json:"id,omitempty"`
	NombreCategoria *string `json:"nombre_categoria,omitempty"`
	Nombre          *string `json:"nombre,omitempty"`
	Name            *string `json:"name,omitempty"`

	decodeErr error
}

func (r *RawCategory) UnmarshalJSON(data []byte) error {
	type plain RawCategory
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*r = RawCategory{decodeErr: err}
		return nil
	}
	*r = RawCategory(p)
	return nil
}

func (r RawCategory) normalize() (Category, bool) {
	if r.decodeErr != nil {
		return Category{}, false
	}
	id := first(r.IDCategoria, r.ID)
	name := first(first(r.NombreCategoria, r.Nombre), r.Name)
	if id == nil || *id <= 0 || name == nil || strings.TrimSpace(*name) == "" {
		return Category{}, false
	}
	return Category{ID: *id, Name: strings.TrimSpace(*name)}, true
}

// DefaultCategories are served when the backend cannot list categories.
var DefaultCategories = []Category{
	{ID: 1, Name: "Verduras"},
	{ID: 2, Name: "Frutas"},
	{ID: 3, Name: "Lacteos"},
}

type CategorySource interface {
	FetchCategories(ctx context.Context) ([]RawCategory, error)
}

// Directory lists categories, falling back to DefaultCategories on backend failure.
type Directory struct {
	source CategorySource
	logger *slog.Logger
}

func NewDirectory(source CategorySource, logger *slog.Logger) *Directory {
	return &Directory{source: source, logger: logger}
}

func (d *Directory) List(ctx context.Context) ([]Category, error) {
	raws, err := d.source.FetchCategories(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.logger.WarnContext(ctx, "using default categories", "error", err)
		out := make([]Category, len(DefaultCategories))
		copy(out, DefaultCategories)
		return out, nil
	}
	out := make([]Category, 0, len(raws))
	seen := make(map[int64]struct{}, len(raws))
	for _, raw := range raws {
		c, ok := raw.normalize()
		if !ok {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// CategoryName resolves id against categories.
func CategoryName(categories []Category, id int64) string {
	for _, c := range categories {
		if c.ID == id {
			return c.Name
		}
	}
	return UncategorizedName
}
