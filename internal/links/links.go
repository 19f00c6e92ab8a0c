// Package links extracts outgoing reference declarations from parsed
// notes: structured front-matter links and inline [[...]] body references.
// Targets stay raw strings here; the index store resolves them against
// known notes at commit time, because the target may not be indexed yet.
package links

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// Extract returns the ordered outgoing references of a note: front-matter
// declarations first, then inline body references, de-duplicated by
// (target, type) keeping the first occurrence. It fails only on
// structurally invalid syntax, never on unresolvable targets.
func Extract(note models.Note) ([]models.Link, error) {
	var out []models.Link
	seen := make(map[[2]string]struct{})
	add := func(target, typ string) {
		key := [2]string{target, typ}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, models.Link{
			SourceID:  note.ID,
			TargetRef: target,
			Type:      typ,
			Position:  len(out),
		})
	}

	for _, decl := range note.FrontLinks {
		target, typ, err := parseDecl(decl)
		if err != nil {
			return nil, err
		}
		add(target, typ)
	}

	for _, m := range wikilinkRe.FindAllStringSubmatch(note.Body, -1) {
		target, err := wikiTarget(m[1])
		if err != nil {
			return nil, err
		}
		add(target, models.LinkTypeReference)
	}
	return out, nil
}

// parseDecl interprets one front-matter links: entry. Accepted forms are a
// plain target string and a {target, type} mapping.
func parseDecl(decl any) (target, typ string, err error) {
	switch v := decl.(type) {
	case string:
		target = strings.TrimSpace(v)
		if target == "" {
			return "", "", &apperr.MalformedLinkError{Ref: v, Reason: "empty target"}
		}
		return target, models.LinkTypeReference, nil
	case map[string]any:
		raw, ok := v["target"]
		if !ok {
			return "", "", &apperr.MalformedLinkError{Ref: fmt.Sprint(v), Reason: "missing target key"}
		}
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", "", &apperr.MalformedLinkError{Ref: fmt.Sprint(raw), Reason: "target must be a non-empty string"}
		}
		typ = models.LinkTypeReference
		if rawType, has := v["type"]; has {
			t, ok := rawType.(string)
			if !ok || strings.TrimSpace(t) == "" {
				return "", "", &apperr.MalformedLinkError{Ref: s, Reason: "type must be a non-empty string"}
			}
			typ = strings.TrimSpace(t)
		}
		return strings.TrimSpace(s), typ, nil
	}
	return "", "", &apperr.MalformedLinkError{Ref: fmt.Sprint(decl), Reason: "must be a string or a {target, type} mapping"}
}

// wikiTarget normalizes one [[...]] match, handling [[Target|Alias]].
func wikiTarget(raw string) (string, error) {
	target := raw
	if i := strings.Index(raw, "|"); i >= 0 {
		target = raw[:i]
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", &apperr.MalformedLinkError{Ref: "[[" + raw + "]]", Reason: "empty target"}
	}
	return target, nil
}
