package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	modulePath   = "voteverse"
	sharedPrefix = modulePath + "/internal/shared"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d imports %q (%s)", v.File, v.Line, v.Import, v.Rule)
}

// layerRule describes what one layer of a context module may import.
// Allowed entries are relative to the module, e.g. "domain".
type layerRule struct {
	name        string
	noAdapters  bool
	allowed     []string
	allowShared bool
}

var layerRules = map[string]layerRule{
	"domain": {
		name:       "domain",
		noAdapters: true,
		allowed:    []string{"domain"},
	},
	"application": {
		name:        "application",
		noAdapters:  true,
		allowed:     []string{"application", "domain", "ports"},
		allowShared: true,
	},
	"ports": {
		name:        "ports",
		noAdapters:  true,
		allowed:     []string{"domain", "ports"},
		allowShared: true,
	},
}

func main() {
	root := flag.String("root", ".", "repository root")
	flag.Parse()

	violations, err := collectViolations(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}
	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Println("- " + v.String())
	}
	os.Exit(1)
}

// collectViolations lints every non-test file under root/contexts. Files are
// expected at contexts/<context>/<module>/<layer>/...
func collectViolations(root string) ([]violation, error) {
	var violations []violation
	contexts := filepath.Join(root, "contexts")
	err := filepath.WalkDir(contexts, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")
		if len(parts) < 4 {
			return nil
		}
		modulePrefix := strings.Join([]string{modulePath, parts[0], parts[1], parts[2]}, "/")
		layer := ""
		if len(parts) > 4 {
			layer = parts[3]
		}
		fileViolations, err := checkFile(path, rel, layer, modulePrefix)
		if err != nil {
			return err
		}
		violations = append(violations, fileViolations...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", contexts, err)
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Import < b.Import
	})
	return violations, nil
}

func checkFile(path, rel, layer, modulePrefix string) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: rel, Line: 1, Rule: "file must parse"}}, nil
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		line := fset.Position(imp.Pos()).Line
		for _, rule := range importRules(importPath, layer, modulePrefix) {
			violations = append(violations, violation{File: rel, Line: line, Import: importPath, Rule: rule})
		}
	}
	return violations, nil
}

// importRules returns the rules importPath breaks when imported from layer.
func importRules(importPath, layer, modulePrefix string) []string {
	var broken []string
	if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, modulePrefix) {
		broken = append(broken, "cross-module imports are forbidden")
	}
	infrastructure := hasPrefix(importPath, modulePath+"/internal/platform") ||
		hasPrefix(importPath, modulePath+"/internal/app")

	rule, layered := layerRules[layer]
	if !layered {
		if infrastructure {
			broken = append(broken, "contexts must not import platform or bootstrap packages")
		}
		return broken
	}
	if rule.noAdapters && strings.HasPrefix(importPath, modulePrefix+"/adapters") {
		broken = append(broken, rule.name+" must not import adapters")
	}
	if infrastructure {
		broken = append(broken, rule.name+" must not import runtime infrastructure")
	}
	if !isStdlib(importPath) && !rule.permits(importPath, modulePrefix) {
		broken = append(broken, rule.name+" import is outside explicit allowlist")
	}
	return broken
}

func (r layerRule) permits(importPath, modulePrefix string) bool {
	if r.allowShared && hasPrefix(importPath, sharedPrefix) {
		return true
	}
	for _, layer := range r.allowed {
		if hasPrefix(importPath, modulePrefix+"/"+layer) {
			return true
		}
	}
	return false
}

func hasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
