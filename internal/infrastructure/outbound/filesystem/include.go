package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// ErrOutsideRoot is returned for paths that resolve outside the root.
var ErrOutsideRoot = errors.New("path escapes root directory")

// IncludeResolver replaces !include nodes with file contents. YAML files are
// spliced in as structure; anything else becomes a string scalar, which is
// how large response bodies are kept in their own files.
//
// References are relative to the including file, or start with @here/ (same)
// or @root/ (definition root). Absolute paths and escapes are refused.
type IncludeResolver struct {
	root string
}

// NewIncludeResolver binds a resolver to an absolute root directory.
func NewIncludeResolver(root string) *IncludeResolver {
	return &IncludeResolver{root: root}
}

// Resolve expands every !include below node. dir is the directory of the
// file node was read from.
func (r *IncludeResolver) Resolve(node *yaml.Node, dir string) error {
	return r.walk(node, dir, 0)
}

func (r *IncludeResolver) walk(node *yaml.Node, dir string, depth int) error {
	if node == nil {
		return nil
	}
	if node.Tag == "!include" {
		return r.include(node, dir, depth)
	}
	for _, child := range node.Content {
		if err := r.walk(child, dir, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) include(node *yaml.Node, dir string, depth int) error {
	if depth >= maxIncludeDepth {
		return fmt.Errorf("line %d: includes nested deeper than %d", node.Line, maxIncludeDepth)
	}
	ref := strings.TrimSpace(node.Value)
	if ref == "" {
		return fmt.Errorf("line %d: empty !include", node.Line)
	}

	target, err := r.locate(ref, dir)
	if err != nil {
		return fmt.Errorf("line %d: !include %q: %w", node.Line, ref, err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}

	if !isYAMLFile(target) {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(data), Line: node.Line}
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse included %s: %w", target, err)
	}
	if err := r.walk(&doc, filepath.Dir(target), depth+1); err != nil {
		return err
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		*node = *doc.Content[0]
	} else {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	}
	return nil
}

func (r *IncludeResolver) locate(ref, dir string) (string, error) {
	var p string
	switch {
	case strings.HasPrefix(ref, "@root/"):
		p = filepath.Join(r.root, strings.TrimPrefix(ref, "@root/"))
	case strings.HasPrefix(ref, "@here/"):
		p = filepath.Join(dir, strings.TrimPrefix(ref, "@here/"))
	case filepath.IsAbs(ref):
		return "", errors.New("absolute paths are not allowed")
	default:
		p = filepath.Join(dir, ref)
	}
	if err := within(r.root, p); err != nil {
		return "", err
	}
	return p, nil
}

// within checks that p, after resolving symlinks where possible, lies
// inside root.
func within(root, p string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}
	realPath, err := filepath.EvalSymlinks(p)
	if err != nil {
		// Not created yet: check the directory it would live in.
		if dir, derr := filepath.EvalSymlinks(filepath.Dir(p)); derr == nil {
			realPath = filepath.Join(dir, filepath.Base(p))
		} else {
			realPath = filepath.Clean(p)
		}
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrOutsideRoot
	}
	return nil
}

func isYAMLFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
