package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

// scalar accepts any YAML scalar (string or number) as text.
type scalar string

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar, got %s", n.Line, kindName(n.Kind))
	}
	*s = scalar(strings.TrimSpace(n.Value))
	return nil
}

type pointEntry struct {
	Namespace  scalar `yaml:"namespace"`
	NodeID     scalar `yaml:"node_id"`
	Identifier scalar `yaml:"identifier"`
	Parameter  scalar `yaml:"parameter"`
}

type serviceSection struct {
	Specification *[]pointEntry `yaml:"specification"`
}

// LoadPointTable reads the point mapping document at path and returns the
// entries under <service>.specification in document order.
func LoadPointTable(path, service string) (domain.PointTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PointTable{}, fmt.Errorf("%w: read point table: %v", domain.ErrConfig, err)
	}
	table, err := ParsePointTable(raw, service)
	if err != nil {
		return domain.PointTable{}, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// ParsePointTable decodes a YAML (or JSON) point mapping document.
func ParsePointTable(raw []byte, service string) (domain.PointTable, error) {
	// other services share the document; only our key has to decode
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.PointTable{}, fmt.Errorf("%w: parse point table: %v", domain.ErrConfig, err)
	}
	if doc == nil {
		return domain.PointTable{}, fmt.Errorf("%w: point table is empty", domain.ErrConfig)
	}

	node, ok := doc[service]
	if !ok {
		return domain.PointTable{}, fmt.Errorf("%w: missing top-level key %q", domain.ErrConfig, service)
	}
	var section serviceSection
	if err := node.Decode(&section); err != nil {
		return domain.PointTable{}, fmt.Errorf("%w: %s: %v", domain.ErrConfig, service, err)
	}
	if section.Specification == nil {
		return domain.PointTable{}, fmt.Errorf("%w: %s: missing key %q", domain.ErrConfig, service, "specification")
	}
	entries := *section.Specification
	if len(entries) == 0 {
		return domain.PointTable{}, fmt.Errorf("%w: %s.specification has no entries", domain.ErrConfig, service)
	}

	var errs []error
	points := make([]domain.PointMapping, 0, len(entries))
	for i, e := range entries {
		ns := e.Namespace
		if ns == "" {
			ns = e.NodeID
		}
		if e.Identifier == "" {
			errs = append(errs, fmt.Errorf("entry %d: identifier is required", i))
		}
		if e.Parameter == "" {
			errs = append(errs, fmt.Errorf("entry %d: parameter is required", i))
		}
		points = append(points, domain.PointMapping{
			Namespace:  string(ns),
			Identifier: string(e.Identifier),
			Property:   string(e.Parameter),
		})
	}
	if len(errs) > 0 {
		return domain.PointTable{}, fmt.Errorf("%w: %s.specification: %w", domain.ErrConfig, service, errors.Join(errs...))
	}

	return domain.NewPointTable(points), nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "node"
	}
}
