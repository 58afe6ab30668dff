package content

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed data/catalog.yaml
var defaultCatalog []byte

//go:embed data/catalog.schema.json
var catalogSchema []byte

const schemaURL = "catalog.schema.json"

// Load reads the catalog at path, or the embedded default when path is
// empty, and validates it.
func Load(path string) (*Catalog, error) {
	logger := slog.With("component", "content", "operation", "load", "path", path)

	raw := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		raw = b
	}

	catalog, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	logger.Info("Content catalog loaded",
		"items", len(catalog.Items),
		"corridor_events", len(catalog.CorridorEvents),
		"apocalypse_events", len(catalog.ApocalypseEvents))
	return catalog, nil
}

// Parse validates raw YAML against the catalog schema and decodes it.
func Parse(raw []byte) (*Catalog, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}

	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("catalog.yaml: %w", err)
	}
	catalog.index()

	if len(catalog.byName) != len(catalog.Items) {
		return nil, fmt.Errorf("catalog.yaml: duplicate item names")
	}
	for _, e := range catalog.CorridorEvents {
		if e.Max < e.Min {
			return nil, fmt.Errorf("catalog.yaml: corridor event %q has max < min", e.Name)
		}
	}
	return &catalog, nil
}

func validate(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(catalogSchema)); err != nil {
		return fmt.Errorf("failed to load catalog schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("failed to compile catalog schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("catalog.yaml: %w", err)
	}

	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("catalog.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("catalog.yaml: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("catalog.yaml does not match schema: %w", err)
	}
	return nil
}
