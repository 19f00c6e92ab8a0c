package parser

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/commonplace/internal/models"
)

// Serialize renders a note back to file form: front-matter between ---
// delimiter lines, then the body. Parsing the output reproduces the id,
// module, title, timestamps, tags, declared properties, extra keys,
// front-matter links, and body.
func Serialize(note models.Note) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var k, v yaml.Node
		if err := k.Encode(key); err != nil {
			return err
		}
		if err := v.Encode(value); err != nil {
			return err
		}
		doc.Content = append(doc.Content, &k, &v)
		return nil
	}

	if note.ID != "" {
		if err := add("id", note.ID); err != nil {
			return nil, err
		}
	}
	if note.Module != "" {
		if err := add("module", note.Module); err != nil {
			return nil, err
		}
	}
	if note.Title != "" {
		if err := add("title", note.Title); err != nil {
			return nil, err
		}
	}
	if !note.Created.IsZero() {
		if err := add("created", note.Created.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	if !note.Modified.IsZero() {
		if err := add("modified", note.Modified.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	if len(note.Tags) > 0 {
		if err := add("tags", note.Tags); err != nil {
			return nil, err
		}
	}
	if len(note.FrontLinks) > 0 {
		if err := add("links", note.FrontLinks); err != nil {
			return nil, err
		}
	}
	for _, p := range note.Properties {
		if err := add(p.Name, p.Value.Any()); err != nil {
			return nil, err
		}
	}
	extraKeys := make([]string, 0, len(note.Extra))
	for k := range note.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if err := add(k, note.Extra[k]); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if len(doc.Content) > 0 {
		out.WriteString("---\n")
		enc := yaml.NewEncoder(&out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("serialize front-matter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("serialize front-matter: %w", err)
		}
		out.WriteString("---\n\n")
	}
	out.WriteString(note.Body)
	if !strings.HasSuffix(note.Body, "\n") {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}
