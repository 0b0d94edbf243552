package crawler

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"clast/internal/ir"
	"clast/internal/parser"

	ignore "github.com/sabhiram/go-gitignore"
)

// File is one parsed source file. Err is set when the file could not be parsed.
type File struct {
	Path  string
	Text  string
	Nodes []ir.Node
	Err   error
}

// Crawler scans a directory for TypeScript source files.
type Crawler struct {
	parser  *parser.Parser
	tsx     *parser.Parser
	ignored []string
}

// NewCrawler creates a new crawler instance.
func NewCrawler(p *parser.Parser) *Crawler {
	c := &Crawler{
		parser:  p,
		tsx:     p,
		ignored: []string{".git", "node_modules", "dist", "build", ".next"},
	}
	if p.Language() != "tsx" {
		if tsx, err := parser.New("tsx", parser.WithPolicy(p.Policy())); err == nil {
			c.tsx = tsx
		}
	}
	return c
}

// ScanProject walks root and parses every .ts/.tsx file not excluded by
// root/.gitignore. Paths handed to onFile are relative to root.
// Files that fail to parse are still reported, with Err set.
func (c *Crawler) ScanProject(ctx context.Context, root string, onFile func(File)) error {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		// Skip ignored directories
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !isSource(d.Name()) || (gi != nil && gi.MatchesPath(rel)) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("crawler read_failed path=%s err=%v", rel, err)
			return nil
		}

		file := File{Path: rel, Text: string(data)}
		file.Nodes, file.Err = c.parserFor(d.Name()).Parse(ctx, file.Text)
		onFile(file)
		return nil
	})
}

func (c *Crawler) parserFor(name string) *parser.Parser {
	if strings.HasSuffix(name, ".tsx") {
		return c.tsx
	}
	return c.parser
}

// isSource matches TypeScript sources, leaving out declaration files and tests.
func isSource(name string) bool {
	if strings.HasSuffix(name, ".d.ts") {
		return false
	}
	if !strings.HasSuffix(name, ".ts") && !strings.HasSuffix(name, ".tsx") {
		return false
	}
	return !strings.Contains(name, ".test.") && !strings.Contains(name, ".spec.")
}
