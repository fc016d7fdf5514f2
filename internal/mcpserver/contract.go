package mcpserver

// LinkConventions explains to MCP clients how slipbox recognizes links and
// how backlink results should be read.
const LinkConventions = `# Slipbox Link Conventions

A note links to another note by mentioning its file name, extension
included. No brackets or special syntax are needed.

## Recognized note files

` + "`.md`, `.org`, `.txt`, `.rmd`, `.ipynb`" + `. Files and directories whose
names start with a dot are ignored.

## Link forms

- Bare file name: ` + "`see zettel.md`" + `
- Path relative to the linking note: ` + "`../ideas/zettel.md`, `./zettel.md`" + `
- Path relative to the notes root: ` + "`ideas/zettel.md`" + `

A bare name that matches no sibling and no root-level note still resolves
when exactly one note in the tree carries that name.

## Backlink modes

- **search** (default): a content search for the target's path as written
  relative to each search root. With ` + "`nested`" + ` every directory under
  the notes root is a search root, so relative links from subfolders are
  found too.
- **graph**: every note in the tree is parsed and links are resolved with
  the rules above. Slower, but independent of how the link was spelled.

Results are paths relative to the notes root unless ` + "`absolute`" + ` is set.
`
