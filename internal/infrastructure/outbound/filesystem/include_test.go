package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/filesystem"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func resolve(t *testing.T, root, dir, src string) (map[string]any, error) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatal(err)
	}
	if err := filesystem.NewIncludeResolver(root).Resolve(&node, dir); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := node.Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out, nil
}

func TestIncludeResolver_Resolves(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "orders")
	writeFile(t, filepath.Join(sub, "body.json"), `{"id":1}`)
	writeFile(t, filepath.Join(root, "shared", "headers.yaml"), "Content-Type: application/json\n")
	writeFile(t, filepath.Join(root, "shared", "nested.yaml"), "inner: !include @here/headers.yaml\n")

	tests := []struct {
		name string
		src  string
		key  string
		want any
	}{
		{"relative raw", "v: !include body.json\n", "v", `{"id":1}`},
		{"here prefix", "v: !include @here/body.json\n", "v", `{"id":1}`},
		{"root prefix yaml", "v: !include @root/shared/headers.yaml\n", "v", map[string]any{"Content-Type": "application/json"}},
		{"nested", "v: !include ../shared/nested.yaml\n", "v",
			map[string]any{"inner": map[string]any{"Content-Type": "application/json"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := resolve(t, root, sub, tt.src)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if !equalValues(out[tt.key], tt.want) {
				t.Errorf("got %#v, want %#v", out[tt.key], tt.want)
			}
		})
	}
}

func equalValues(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok != bok {
		return false
	}
	if !aok {
		return a == b
	}
	if len(am) != len(bm) {
		return false
	}
	for k, v := range am {
		if !equalValues(v, bm[k]) {
			return false
		}
	}
	return true
}

func TestIncludeResolver_Refuses(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "mock")
	writeFile(t, filepath.Join(parent, "secret.txt"), "nope")
	writeFile(t, filepath.Join(parent, "mockery", "x.txt"), "nope")
	writeFile(t, filepath.Join(root, "self.yaml"), "v: !include self.yaml\n")

	tests := []struct {
		name string
		src  string
	}{
		{"empty", "v: !include \"\"\n"},
		{"absolute", "v: !include /etc/passwd\n"},
		{"traversal", "v: !include ../secret.txt\n"},
		{"sibling with shared prefix", "v: !include ../mockery/x.txt\n"},
		{"root traversal", "v: !include @root/../secret.txt\n"},
		{"missing", "v: !include missing.txt\n"},
		{"cycle", "v: !include self.yaml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolve(t, root, root, tt.src); err == nil {
				t.Error("expected error")
			}
		})
	}
}
