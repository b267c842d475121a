package mcpserver

// ContentFormat describes how content files are interpreted and which
// pipeline components collections and queries may reference.
const ContentFormat = `# Content Format

A content file is an optional YAML frontmatter block followed by a body.

` + "```" + `markdown
---
title: Hello world
date: 2024-05-01
draft: false
---

Body text. [[Other page|Links]] become Markdown links with the wikilinks transformer.
` + "```" + `

## Rules

1. The opening ` + "`---`" + ` must be the very first line of the file. A block
   anywhere else is part of the body.
2. Frontmatter must be a YAML mapping with non-empty keys. Anything else is
   logged and the file keeps only its body.
3. A file without frontmatter is all body.
4. A body that is empty or whitespace only is dropped. A file with neither
   data nor body is skipped entirely.
5. Paths are relative to the content root and use forward slashes.

## Pipeline components

Components are referenced by name, with an optional ` + "`:argument`" + `.

| Kind | Reference | Effect |
|---|---|---|
| validator | ` + "`passthrough`" + ` | keeps data unchanged |
| validator | ` + "`required:k1,k2`" + ` | drops data unless every key is present and non-empty |
| transformer | ` + "`trim`" + ` | trims surrounding whitespace |
| transformer | ` + "`normalize-newlines`" + ` | converts CRLF and CR to LF |
| transformer | ` + "`strip-comments`" + ` | removes HTML comments |
| transformer | ` + "`wikilinks`" + ` | rewrites ` + "`[[target|label]]`" + ` into ` + "`[label](target)`" + ` |
| list handler | ` + "`sort:field[:desc]`" + ` | sorts by data field, or by path, slug or name |
| list handler | ` + "`exclude-drafts`" + ` | drops modules with draft: true or published: false |
| list handler | ` + "`dedupe`" + ` | keeps the first module per path |

## Pagination

With a page size c, page 0 covers entries [0, c) and page n >= 1 covers
[n*c, n*c+c). The default page is 1. totalPages is totalEntries / c + 1.
`
