package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Commonplace Note Format Contract

Every Markdown note stored in Commonplace MUST follow this structure.

## Structure

` + "```" + `markdown
---
id: task-7K2Q                       # OPTIONAL - stamped automatically on create
module: tasks                       # OPTIONAL - defaults to "note"
title: Human-readable title         # OPTIONAL - falls back to first H1, then filename
tags:                               # OPTIONAL - YAML list; lowercased on index
  - tag-one
  - tag-two
links:                              # OPTIONAL - structured outgoing links
  - other-note
  - target: project-alpha
    type: blocks
status: todo                        # module-declared properties, typed per schema
due_date: 2026-09-01                # dates are YYYY-MM-DD
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Rules

1. **Frontmatter is optional but recommended.** When present, the ` + "```" + `---` + "```" + `
   fences must be the first thing in the file (no leading blank lines).
2. **Never invent an ` + "`" + `id` + "`" + `.** Leave it out; the engine stamps a stable one
   on create and it must not change afterwards.
3. **` + "`" + `module` + "`" + ` selects the property schema.** Use list_modules to see the
   declared properties, their types, and which are required. Values that do
   not match their declared type are rejected, and the note is not indexed.
4. **Unknown keys are kept.** Properties outside the schema are stored in
   the note's extra bucket, not dropped. Spelling still matters.
5. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `). Inline ` + "`" + `#tag` + "`" + `
   references in the body are indexed too.
6. **Links** may target a note id, a title, or a filename stem. Targets that
   do not exist yet are fine; they resolve when the note appears.
7. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
8. **Encoding** is UTF-8 with a trailing newline.

## Example

` + "```" + `markdown
---
module: tasks
title: Ship the 1.4 release
tags:
  - release
status: in-progress
due_date: 2026-09-01
links:
  - target: release-checklist
    type: depends-on
---

# Ship the 1.4 release

Cut the branch after [[qa-signoff]] lands, then follow
[[release-checklist|the checklist]].
` + "```" + `
`
