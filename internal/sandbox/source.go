package sandbox

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// allowedImports are the standard packages generated code may import.
var allowedImports = map[string]bool{
	"bytes":   true,
	"errors":  true,
	"fmt":     true,
	"math":    true,
	"sort":    true,
	"strconv": true,
	"strings": true,
	"time":    true,
	"unicode": true,
}

var (
	packageRe  = regexp.MustCompile(`^\s*package\s+\w+\s*;?\s*$`)
	importOne  = regexp.MustCompile(`^\s*import\s+(?:([\w.]+)\s+)?("[^"]+")\s*;?\s*$`)
	importOpen = regexp.MustCompile(`^\s*import\s*\(\s*$`)
	importSpec = regexp.MustCompile(`^\s*(?:([\w.]+)\s+)?("[^"]+")\s*;?\s*$`)
	mainFuncRe = regexp.MustCompile(`(?m)^func\s+main\s*\(\s*\)`)
)

// wrapSource turns a snippet into a main package exposing Run. Leading
// import lines are hoisted and checked against allowedImports. A snippet
// that declares func main is kept at file level and Run calls main;
// anything else becomes the body of Run.
func wrapSource(code string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	type spec struct{ alias, quoted string }
	var imports []spec
	i := 0
	inBlock := false
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if trimmed == ")" {
				inBlock = false
				continue
			}
			if trimmed == "" || strings.HasPrefix(trimmed, "//") {
				continue
			}
			m := importSpec.FindStringSubmatch(line)
			if m == nil {
				return "", fmt.Errorf("line %d: malformed import %q", i+1, trimmed)
			}
			imports = append(imports, spec{m[1], m[2]})
			continue
		case trimmed == "" || strings.HasPrefix(trimmed, "//") || packageRe.MatchString(line):
			continue
		case importOpen.MatchString(line):
			inBlock = true
			continue
		}
		if m := importOne.FindStringSubmatch(line); m != nil {
			imports = append(imports, spec{m[1], m[2]})
			continue
		}
		break
	}
	body := strings.Join(lines[i:], "\n")

	seen := map[string]bool{}
	var decls []string
	for _, im := range imports {
		p, err := strconv.Unquote(im.quoted)
		if err != nil {
			return "", fmt.Errorf("malformed import %s", im.quoted)
		}
		if !allowedImports[p] {
			return "", fmt.Errorf("import %q is not allowed (allowed: %s)", p, strings.Join(allowedList(), ", "))
		}
		decl := strconv.Quote(p)
		if im.alias != "" {
			decl = im.alias + " " + decl
		} else {
			seen[p] = true
		}
		if !seen[decl] {
			seen[decl] = true
			decls = append(decls, decl)
		}
	}

	// snippets often use fmt or math without importing them
	for _, p := range allowedList() {
		if !seen[p] && selectorRe(p).MatchString(body) {
			seen[p] = true
			decls = append(decls, strconv.Quote(p))
		}
	}

	var b strings.Builder
	b.WriteString("package main\n\nimport (\n\t\"datachat/env\"\n")
	for _, d := range decls {
		fmt.Fprintf(&b, "\t%s\n", d)
	}
	b.WriteString(")\n\n")
	if mainFuncRe.MatchString(body) {
		b.WriteString("var df = env.DF\nvar plt = env.Plt\n\n")
		b.WriteString(body)
		b.WriteString("\n\nfunc Run() { main() }\n")
		return b.String(), nil
	}
	b.WriteString("func Run() {\n\tdf := env.DF\n\tplt := env.Plt\n\t_, _ = df, plt\n")
	b.WriteString(body)
	b.WriteString("\n}\n")
	return b.String(), nil
}

// ErrGoroutine rejects code that starts goroutines. A panic on another
// goroutine cannot be recovered by the interpreter and would kill the host.
var ErrGoroutine = errors.New("goroutines are not allowed")

// checkSource rejects go statements in wrapped source. Code that does not
// parse is left for the interpreter to report.
func checkSource(src string) error {
	file, err := parser.ParseFile(token.NewFileSet(), "_.go", src, 0)
	if err != nil {
		return nil
	}
	var found bool
	ast.Inspect(file, func(n ast.Node) bool {
		if _, ok := n.(*ast.GoStmt); ok {
			found = true
		}
		return !found
	})
	if found {
		return ErrGoroutine
	}
	return nil
}

func allowedList() []string {
	out := make([]string, 0, len(allowedImports))
	for k := range allowedImports {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var selectorCache = map[string]*regexp.Regexp{}

func init() {
	for p := range allowedImports {
		selectorCache[p] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\.[A-Z]`)
	}
}

func selectorRe(pkg string) *regexp.Regexp { return selectorCache[pkg] }
