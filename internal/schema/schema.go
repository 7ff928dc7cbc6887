// Package schema implements the node-type schema/property engine: field
// declarations per node_type, validation of a node's properties bag
// against them, and the admin operations (AddField/RemoveField/
// NarrowField) that mutate a live schema without invalidating persisted
// data.
package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/nodespace/internal/nodeerr"
)

// FieldType is one of the five property value shapes a field may declare.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldEnum    FieldType = "enum"
	FieldDate    FieldType = "date"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Field declares one property of a node_type's schema.
type Field struct {
	Name        string    `yaml:"name"`
	Type        FieldType `yaml:"type"`
	Required    bool      `yaml:"required"`
	Description string    `yaml:"description,omitempty"`
	Values      []string  `yaml:"values,omitempty"` // only meaningful for FieldEnum
}

// Schema is the declared property shape for a node_type.
type Schema struct {
	NodeType string  `yaml:"node_type"`
	Fields   []Field `yaml:"fields"`
	Version  int     `yaml:"version"`
}

func (s *Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks properties against the schema: unknown fields are
// rejected, required fields must be present (present-with-nil satisfies
// required), and enum values must be one of the declared set.
func (s *Schema) Validate(properties map[string]any) error {
	if s == nil {
		return nil
	}
	for name := range properties {
		if _, ok := s.field(name); !ok {
			return nodeerr.New(nodeerr.KindSchemaViolation,
				fmt.Sprintf("unknown field %q for node_type %q", name, s.NodeType), nil)
		}
	}
	for _, f := range s.Fields {
		v, present := properties[f.Name]
		if f.Required && !present {
			return nodeerr.New(nodeerr.KindSchemaViolation,
				fmt.Sprintf("missing required field %q for node_type %q", f.Name, s.NodeType), nil)
		}
		if !present || v == nil {
			continue
		}
		if f.Type == FieldEnum && len(f.Values) > 0 {
			sv, ok := v.(string)
			if !ok || !contains(f.Values, sv) {
				return nodeerr.New(nodeerr.KindSchemaViolation,
					fmt.Sprintf("field %q must be one of %v", f.Name, f.Values), nil)
			}
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, c := range values {
		if c == v {
			return true
		}
	}
	return false
}

// LoadDir reads every *.yaml/*.yml file in dir as a Schema definition,
// mirroring the YAML-config-file convention the rest of this repo's
// ambient stack (internal/config) uses. A missing directory is not an
// error: a host with no declared schemas simply runs with every node_type
// open (Registry.Get returns nil, which Schema.Validate treats as "accept
// anything").
func LoadDir(dir string) ([]*Schema, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", dir, err)
	}

	var out []*Schema
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", path, err)
		}
		var s Schema
		if err := yaml.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", path, err)
		}
		out = append(out, &s)
	}
	return out, nil
}

// DataChecker lets the registry ask the node store whether existing data
// would be invalidated by a schema-narrowing change, without the schema
// package importing storage directly.
type DataChecker interface {
	// HasValueOutside reports whether any node of nodeType has a non-null
	// value for field that is not in allowed (used by NarrowField); for
	// RemoveField, allowed is nil and any non-null value counts.
	HasValueOutside(nodeType, field string, allowed []string) (bool, error)
}

// Registry holds the live set of schemas, keyed by node_type.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry builds a Registry from an initial set of schemas (typically
// loaded from YAML at startup).
func NewRegistry(initial []*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(initial))}
	for _, s := range initial {
		r.schemas[s.NodeType] = s
	}
	return r
}

// Get returns the schema for nodeType, or nil if node_type is unschema'd
// (an open node_type with no declared shape validates any properties).
func (r *Registry) Get(nodeType string) *Schema {
	return r.schemas[nodeType]
}

// Put registers or replaces a schema wholesale (used by startup load and by
// tests); it does not apply migration-safety checks; use AddField/
// RemoveField/NarrowField for checked mutation of a live schema.
func (r *Registry) Put(s *Schema) {
	r.schemas[s.NodeType] = s
}

// AddField adds a field to nodeType's schema. Adding an optional field is
// always safe; a required field with no default would invalidate every
// existing node missing it, so AddField only accepts non-required fields.
func (r *Registry) AddField(nodeType string, f Field) error {
	if f.Required {
		return nodeerr.New(nodeerr.KindSchemaViolation,
			"AddField cannot add a required field to a live schema; add it optional and narrow later", nil)
	}
	s := r.schemas[nodeType]
	if s == nil {
		s = &Schema{NodeType: nodeType}
		r.schemas[nodeType] = s
	}
	if _, exists := s.field(f.Name); exists {
		return nodeerr.New(nodeerr.KindSchemaViolation,
			fmt.Sprintf("field %q already exists on node_type %q", f.Name, nodeType), nil)
	}
	s.Fields = append(s.Fields, f)
	s.Version++
	return nil
}

// RemoveField drops a field from nodeType's schema, rejecting the change
// if any existing node has a non-null value for it.
func (r *Registry) RemoveField(nodeType, field string, checker DataChecker) error {
	s := r.schemas[nodeType]
	if s == nil {
		return nodeerr.NotFoundf(nodeType)
	}
	idx := -1
	for i, f := range s.Fields {
		if f.Name == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nodeerr.NotFoundf(field)
	}
	if checker != nil {
		inUse, err := checker.HasValueOutside(nodeType, field, nil)
		if err != nil {
			return err
		}
		if inUse {
			return nodeerr.New(nodeerr.KindSchemaViolation,
				fmt.Sprintf("cannot remove field %q: existing nodes hold non-null values", field), nil)
		}
	}
	s.Fields = append(s.Fields[:idx], s.Fields[idx+1:]...)
	s.Version++
	return nil
}

// NarrowField restricts an enum field's allowed values, rejecting the
// change if any existing node holds a value outside the new set.
func (r *Registry) NarrowField(nodeType, field string, newValues []string, checker DataChecker) error {
	s := r.schemas[nodeType]
	if s == nil {
		return nodeerr.NotFoundf(nodeType)
	}
	idx := -1
	for i, f := range s.Fields {
		if f.Name == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nodeerr.NotFoundf(field)
	}
	if s.Fields[idx].Type != FieldEnum {
		return nodeerr.New(nodeerr.KindSchemaViolation, "NarrowField only applies to enum fields", nil)
	}
	if checker != nil {
		outside, err := checker.HasValueOutside(nodeType, field, newValues)
		if err != nil {
			return err
		}
		if outside {
			return nodeerr.New(nodeerr.KindSchemaViolation,
				fmt.Sprintf("cannot narrow field %q: existing nodes hold values outside %v", field, newValues), nil)
		}
	}
	s.Fields[idx].Values = newValues
	s.Version++
	return nil
}
