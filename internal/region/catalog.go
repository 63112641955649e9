// Package region holds the static catalog of administrative regions and
// their search areas. The catalog is compiled in from regions.yaml and
// validated once at load; it never changes during a run.
package region

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/trail-data-etl/internal/domain"
)

//go:embed regions.yaml
var regionsYAML []byte

// Region is a top-level administrative area with its search areas.
type Region struct {
	Code  string              `yaml:"code"`
	Name  string              `yaml:"name"`
	Areas []domain.SearchArea `yaml:"areas"`
}

type catalogFile struct {
	Regions []Region `yaml:"regions"`
}

// Catalog is the loaded, validated set of configured regions.
type Catalog struct {
	regions []Region
	byCode  map[string]Region
}

// Load parses and validates the embedded catalog. Every bounding box must
// satisfy south < north and west < east; a bad entry fails the whole load so
// a misconfigured catalog never reaches the pipeline.
func Load() (*Catalog, error) {
	return parse(regionsYAML)
}

func parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse region catalog: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("region catalog is empty")
	}

	c := &Catalog{byCode: make(map[string]Region, len(f.Regions))}
	for _, r := range f.Regions {
		code := strings.ToLower(strings.TrimSpace(r.Code))
		if code == "" {
			return nil, fmt.Errorf("region %q: missing code", r.Name)
		}
		if _, dup := c.byCode[code]; dup {
			return nil, fmt.Errorf("region %q: duplicate code", code)
		}
		if len(r.Areas) == 0 {
			return nil, fmt.Errorf("region %q: no search areas", code)
		}
		for _, a := range r.Areas {
			if a.ID == "" {
				return nil, fmt.Errorf("region %q: search area %q missing id", code, a.Name)
			}
			if err := a.Bounds.Validate(); err != nil {
				return nil, fmt.Errorf("region %q area %q: %w", code, a.ID, err)
			}
		}
		r.Code = code
		c.regions = append(c.regions, r)
		c.byCode[code] = r
	}
	return c, nil
}

// All returns every configured region in catalog order.
func (c *Catalog) All() []Region {
	return c.regions
}

// ByCode looks up a region by its lowercase code.
func (c *Catalog) ByCode(code string) (Region, bool) {
	r, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	return r, ok
}

// Select resolves region codes to regions, in input order. An unknown code is
// an error naming the code, so a typo on the command line is reported before
// any fetch happens. An empty code list selects all configured regions.
func (c *Catalog) Select(codes []string) ([]Region, error) {
	if len(codes) == 0 {
		return c.All(), nil
	}
	out := make([]Region, 0, len(codes))
	for _, code := range codes {
		r, ok := c.ByCode(code)
		if !ok {
			return nil, fmt.Errorf("unknown region code %q (run list-regions for configured codes)", code)
		}
		out = append(out, r)
	}
	return out, nil
}

// Codes returns all configured region codes, sorted.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.byCode))
	for code := range c.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
