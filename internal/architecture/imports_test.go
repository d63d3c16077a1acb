package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importViolation struct {
	file string
	imp  string
	rule string
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleInfo(t)

	var violations []importViolation
	walkImports(t, filepath.Join(root, "internal"), root, func(rel, imp string) {
		for _, bad := range disallowedImports(modulePath, layerFor(rel)) {
			if strings.HasPrefix(imp, bad) {
				violations = append(violations, importViolation{file: rel, imp: imp, rule: bad})
				return
			}
		}
	})
	reportViolations(t, "import boundary violations:", violations)
}

// Handlers reach storage only through services and aggregates.
func TestNoHandlerStorageAccess(t *testing.T) {
	root, modulePath := moduleInfo(t)

	var violations []importViolation
	walkImports(t, filepath.Join(root, "internal", "http", "handlers"), root, func(rel, imp string) {
		if strings.HasSuffix(rel, "_test.go") {
			return
		}
		if strings.HasPrefix(imp, modulePath+"/internal/data/") || imp == "gorm.io/gorm" {
			violations = append(violations, importViolation{file: rel, imp: imp, rule: "storage"})
		}
	})
	reportViolations(t, "storage imports in handlers (go through internal/services or the aggregates):", violations)
}

func moduleInfo(t *testing.T) (root, modulePath string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err = findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err = readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

// walkImports calls fn for every import of every .go file under dir. rel is
// the slash-separated path of the importing file relative to root.
func walkImports(t *testing.T, dir, root string, fn func(rel, imp string)) {
	t.Helper()
	fset := token.NewFileSet()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "testdata", "vendor", ".gocache":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
				fn(filepath.ToSlash(rel), imp)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
}

func reportViolations(t *testing.T, header string, violations []importViolation) {
	t.Helper()
	if len(violations) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s imports %q (rule: %s)\n", v.file, v.imp, v.rule)
	}
	t.Fatal(b.String())
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/services/"):
		return "services"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	internal := modulePath + "/internal/"
	switch layer {
	case "domain":
		return []string{
			internal + "data/",
			internal + "http/",
			internal + "services",
			internal + "cache",
			internal + "realtime/",
			internal + "temporalx",
			internal + "app",
			internal + "cli",
		}
	case "platform":
		return []string{
			internal + "http/",
			internal + "services",
			internal + "app",
			internal + "cli",
		}
	case "services":
		return []string{
			internal + "http/",
			internal + "app",
			internal + "cli",
		}
	case "data":
		return []string{
			internal + "http/",
			internal + "services",
			internal + "app",
		}
	default:
		return nil
	}
}

func TestLayerRules(t *testing.T) {
	const mod = "example.com/lotline"
	if got := layerFor("internal/domain/production/lot.go"); got != "domain" {
		t.Fatalf("layerFor domain: got %q", got)
	}
	if got := layerFor("internal/cli/root.go"); got != "" {
		t.Fatalf("cli has no layer rules: got %q", got)
	}
	for _, bad := range disallowedImports(mod, "domain") {
		if strings.HasPrefix(mod+"/internal/domain/production", bad) {
			t.Fatalf("domain must be allowed to import itself (matched %q)", bad)
		}
	}
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		if mp := strings.TrimSpace(strings.TrimPrefix(line, "module ")); mp != "" {
			return mp, nil
		}
		return "", fmt.Errorf("empty module path in %s", goModPath)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
