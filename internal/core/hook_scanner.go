package core

import (
	"fmt"
	"io"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// deniedCommands are process-spawning or eval-style primitives a hook may
// not call, directly or by path.
var deniedCommands = map[string]struct{}{
	"eval":    {},
	"exec":    {},
	"source":  {},
	".":       {},
	"sh":      {},
	"bash":    {},
	"zsh":     {},
	"dash":    {},
	"ksh":     {},
	"env":     {},
	"command": {},
	"builtin": {},
	"xargs":   {},
	"nohup":   {},
	"setsid":  {},
	"sudo":    {},
	"su":      {},
}

// HookFinding is one forbidden construct found in a hook script.
type HookFinding struct {
	Line      uint
	Construct string
}

func (f HookFinding) String() string {
	return fmt.Sprintf("line %d: %s", f.Line, f.Construct)
}

// IsDeniedCommand reports whether name, or its base name when given as a
// path, is on the deny list.
func IsDeniedCommand(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := deniedCommands[name]; ok {
		return true
	}
	_, ok := deniedCommands[path.Base(name)]
	return ok
}

// ParseHookScript parses a POSIX/bash hook script.
func ParseHookScript(src io.Reader, name string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	return parser.Parse(src, name)
}

// ScanHookScript walks the syntax tree of a hook and reports denied calls,
// command and process substitution, and calls through a variable callee.
// It is a static safety net, not isolation.
func ScanHookScript(file *syntax.File) []HookFinding {
	var findings []HookFinding
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CmdSubst:
			findings = append(findings, HookFinding{Line: n.Pos().Line(), Construct: "command substitution"})
		case *syntax.ProcSubst:
			findings = append(findings, HookFinding{Line: n.Pos().Line(), Construct: "process substitution"})
		case *syntax.CoprocClause:
			findings = append(findings, HookFinding{Line: n.Pos().Line(), Construct: "coprocess"})
		case *syntax.CallExpr:
			if len(n.Args) == 0 {
				return true
			}
			callee := n.Args[0]
			name, static := staticWord(callee)
			if !static {
				if hasParamExp(callee) {
					findings = append(findings, HookFinding{
						Line:      callee.Pos().Line(),
						Construct: "indirect call through a variable",
					})
				}
				return true
			}
			if IsDeniedCommand(name) {
				findings = append(findings, HookFinding{
					Line:      callee.Pos().Line(),
					Construct: fmt.Sprintf("call to %q", name),
				})
			}
		}
		return true
	})
	return findings
}

// staticWord returns the literal value of a word made only of literals and
// quoted literals.
func staticWord(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

func hasParamExp(word *syntax.Word) bool {
	found := false
	syntax.Walk(word, func(node syntax.Node) bool {
		if _, ok := node.(*syntax.ParamExp); ok {
			found = true
			return false
		}
		return !found
	})
	return found
}
