package moderation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PolicySource loads the list of banned words.
type PolicySource interface {
	Name() string
	Load(ctx context.Context) ([]string, error)
}

// Policy is the YAML document describing a moderation policy.
//
//	terms:
//	  - first
//	  - second
type Policy struct {
	Terms []string `yaml:"terms"`
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) ([]string, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return p.Terms, nil
}

// StaticSource serves a fixed term list.
type StaticSource []string

func (s StaticSource) Name() string { return "builtin" }

func (s StaticSource) Load(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// FileSource reads a YAML policy from disk on every load.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(context.Context) ([]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// TermLister is implemented by stores holding the moderation_terms table.
type TermLister interface {
	ListTerms(ctx context.Context) ([]string, error)
}

// TableSource loads terms from a database table.
type TableSource struct {
	Terms TermLister
}

func (s TableSource) Name() string { return "table" }

func (s TableSource) Load(ctx context.Context) ([]string, error) {
	terms, err := s.Terms.ListTerms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list moderation terms: %w", err)
	}
	return terms, nil
}

// ObjectGetter fetches a document from an object store.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ObjectSource reads a YAML policy from an object store such as S3.
type ObjectSource struct {
	Store ObjectGetter
	Key   string
}

func (s ObjectSource) Name() string { return "object:" + s.Key }

func (s ObjectSource) Load(ctx context.Context) ([]string, error) {
	data, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return nil, fmt.Errorf("fetch policy object: %w", err)
	}
	return ParsePolicy(data)
}

// EncodePolicy renders terms as a YAML policy document.
func EncodePolicy(terms []string) ([]byte, error) {
	data, err := yaml.Marshal(Policy{Terms: terms})
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return data, nil
}
