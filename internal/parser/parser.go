// Package parser turns note file bytes into structured records: YAML
// front-matter split from the body, typed property coercion against the
// note's module schema, and title/tag derivation.
//
// The file format is stable: an optional front-matter block between ---
// delimiter lines at the top of the file, then an opaque Markdown body.
// Reserved front-matter keys (id, module, title, tags, links, created,
// modified) are consumed by the engine; keys declared in the module schema
// are coerced to their declared types; everything else is retained verbatim
// in the note's Extra bucket.
package parser

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/schema"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Parser parses note files against the schemas in a registry.
type Parser struct {
	reg *schema.Registry
}

// New returns a parser bound to reg.
func New(reg *schema.Registry) *Parser {
	return &Parser{reg: reg}
}

// Parse builds a Note from raw file bytes. The whole note is rejected on a
// coercion failure or a missing required property; there are no partial
// records. Unknown front-matter keys land in Extra.
func (p *Parser) Parse(raw []byte, path string) (models.Note, error) {
	fm, body := splitFrontmatter(raw)

	note := models.Note{
		Path:  path,
		Body:  body,
		Title: deriveTitle(fm, body, path),
		Tags:  extractTags(body, fm),
	}

	moduleID, err := resolveModule(fm)
	if err != nil {
		return models.Note{}, &apperr.ParseError{Path: path, Err: err}
	}
	note.Module = moduleID

	if v, ok := fm["id"]; ok {
		s, ok := v.(string)
		if !ok {
			return models.Note{}, &apperr.ParseError{Path: path, Err: &apperr.PropertyTypeError{
				Property: "id", Type: string(models.TypeText), Value: v,
			}}
		}
		note.ID = strings.TrimSpace(s)
	}

	note.Created, err = timestampKey(fm, "created")
	if err != nil {
		return models.Note{}, &apperr.ParseError{Path: path, Err: err}
	}
	note.Modified, err = timestampKey(fm, "modified")
	if err != nil {
		return models.Note{}, &apperr.ParseError{Path: path, Err: err}
	}

	note.FrontLinks = linkDecls(fm)

	mod, _ := p.reg.Module(moduleID)
	props, extra, err := coerceProperties(mod, fm)
	if err != nil {
		return models.Note{}, &apperr.ParseError{Path: path, Err: err}
	}
	note.Properties = props
	note.Extra = extra

	return note, nil
}

// resolveModule reads the module: key, defaulting when absent. An
// unregistered module name is kept as-is; its properties are parsed with an
// empty schema so they land in Extra until the module definition loads.
func resolveModule(fm map[string]any) (string, error) {
	raw, ok := fm["module"]
	if !ok {
		return schema.DefaultModule, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &apperr.PropertyTypeError{Property: "module", Type: string(models.TypeText), Value: raw}
	}
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return schema.DefaultModule, nil
	}
	return s, nil
}

// coerceProperties matches front-matter keys against the module schema.
// Declared properties come back in schema order; unknown keys are retained
// verbatim in the extra bucket.
func coerceProperties(mod models.Module, fm map[string]any) ([]models.Property, map[string]any, error) {
	var props []models.Property
	for _, def := range mod.Properties {
		raw, ok := fm[def.Name]
		if !ok {
			if def.Required {
				return nil, nil, &apperr.MissingRequiredPropertyError{Property: def.Name}
			}
			continue
		}
		v, err := coerceValue(def, raw)
		if err != nil {
			return nil, nil, err
		}
		props = append(props, models.Property{Name: def.Name, Value: v})
	}

	var extra map[string]any
	for key, raw := range fm {
		if schema.ReservedKey(key) {
			continue
		}
		if _, ok := mod.Property(key); ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = raw
	}
	return props, extra, nil
}

// splitFrontmatter separates YAML front-matter (between leading ---
// delimiters) from the Markdown body. Absent or invalid front-matter means
// the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// linkDecls collects the raw links: declarations for the link resolver.
// A single scalar or mapping is accepted as a one-element list.
func linkDecls(fm map[string]any) []any {
	raw, ok := fm["links"]
	if !ok || raw == nil {
		return nil
	}
	if list, ok := raw.([]any); ok {
		return list
	}
	return []any{raw}
}

// timestampKey reads an optional timestamp front-matter key. YAML delivers
// bare dates as time.Time; strings accept RFC 3339 and plain dates.
func timestampKey(fm map[string]any, key string) (time.Time, error) {
	raw, ok := fm[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &apperr.PropertyTypeError{Property: key, Type: string(models.TypeDate), Value: raw}
}

// extractTags collects tags from the frontmatter tags: list and inline #tag
// tokens in the body, lower-cased and de-duplicated in first-seen order.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if raw, ok := fm["tags"]; ok {
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			add(v)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise the path stem.
func deriveTitle(fm map[string]any, body, path string) string {
	if t, ok := fm["title"]; ok {
		if s, ok := t.(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
