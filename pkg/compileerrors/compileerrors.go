// Package compileerrors implements the error taxonomy of the fatal
// compile-time errors and the one warning-level diagnostic (§7). Kinds
// are behavioural, not type names, but each still gets a concrete Go
// type so callers can type-switch on them (adapted from the teacher's
// CompileError/RuntimeError split).
package compileerrors

import (
	"fmt"
	"strings"
)

// ANSI color codes for CLI diagnostics.
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
	Bold   = "\033[1m"
)

// Location identifies where in the input AST a fatal error occurred.
type Location struct {
	ClassName  string
	MethodName string
}

func (l Location) String() string {
	switch {
	case l.ClassName != "" && l.MethodName != "":
		return fmt.Sprintf("%s.%s", l.ClassName, l.MethodName)
	case l.MethodName != "":
		return l.MethodName
	case l.ClassName != "":
		return l.ClassName
	default:
		return ""
	}
}

// ExternMissingError: required signature not in the catalog (§7).
type ExternMissingError struct {
	TypeName   string
	MemberName string
	ParamTypes []string
	Loc        Location
}

func (e *ExternMissingError) Error() string {
	return fmt.Sprintf("extern missing: %s.%s(%s)%s",
		e.TypeName, e.MemberName, strings.Join(e.ParamTypes, ", "), locSuffix(e.Loc))
}

// FormatError renders the error with ANSI colour when useColors is true,
// mirroring the teacher's CompileError.FormatError idiom.
func (e *ExternMissingError) FormatError(useColors bool) string {
	return format(useColors, "Extern Missing", e.Error(), "")
}

// UnsupportedFeatureError: a source construct the lowerer refuses to
// translate (§7), e.g. parseInt with a non-literal radix.
type UnsupportedFeatureError struct {
	Feature string
	Detail  string
	Loc     Location
}

func (e *UnsupportedFeatureError) Error() string {
	msg := fmt.Sprintf("unsupported feature: %s", e.Feature)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg + locSuffix(e.Loc)
}

func (e *UnsupportedFeatureError) FormatError(useColors bool) string {
	return format(useColors, "Unsupported Feature", e.Error(), "")
}

// UndefinedSymbolError: identifier not in the symbol table and not a
// recognised host global (§7).
type UndefinedSymbolError struct {
	Name string
	Loc  Location
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("undefined symbol: %s%s", e.Name, locSuffix(e.Loc))
}

func (e *UndefinedSymbolError) FormatError(useColors bool) string {
	return format(useColors, "Undefined Symbol", e.Error(), "check for a typo or missing declaration")
}

// ControlFlowOutsideLoopError: break/continue with an empty loop stack (§7).
type ControlFlowOutsideLoopError struct {
	Keyword string // "break" or "continue"
	Loc     Location
}

func (e *ControlFlowOutsideLoopError) Error() string {
	return fmt.Sprintf("%s outside loop%s", e.Keyword, locSuffix(e.Loc))
}

func (e *ControlFlowOutsideLoopError) FormatError(useColors bool) string {
	return format(useColors, "Control Flow Outside Loop", e.Error(), "")
}

// MalformedASTError: an invariant violation in the input (§7).
type MalformedASTError struct {
	Reason string
	Loc    Location
}

func (e *MalformedASTError) Error() string {
	return fmt.Sprintf("malformed AST: %s%s", e.Reason, locSuffix(e.Loc))
}

func (e *MalformedASTError) FormatError(useColors bool) string {
	return format(useColors, "Malformed AST", e.Error(), "")
}

// UnresolvedLabelWarning: the assembler couldn't find a target label;
// logged as a warning and replaced with the halt address (§7, §4.G).
// Unlike the other kinds this is never returned as an error value — it
// is passed to the logger — but it implements error so it composes with
// FormatError and the rest of the taxonomy.
type UnresolvedLabelWarning struct {
	Label string
}

func (w *UnresolvedLabelWarning) Error() string {
	return fmt.Sprintf("unresolved label %q replaced with halt address", w.Label)
}

func (w *UnresolvedLabelWarning) FormatError(useColors bool) string {
	return format(useColors, "Unresolved Label", w.Error(), "")
}

func locSuffix(l Location) string {
	if s := l.String(); s != "" {
		return " (in " + s + ")"
	}
	return ""
}

func format(useColors bool, kind, message, suggestion string) string {
	var b strings.Builder
	if useColors {
		b.WriteString(Bold + Red + kind + Reset)
	} else {
		b.WriteString(kind)
	}
	b.WriteString(": ")
	if useColors {
		b.WriteString(Red + message + Reset)
	} else {
		b.WriteString(message)
	}
	if suggestion != "" {
		b.WriteString("\n")
		if useColors {
			b.WriteString(fmt.Sprintf("%s%sSuggestion:%s %s", Bold, Yellow, Reset, suggestion))
		} else {
			b.WriteString("Suggestion: " + suggestion)
		}
	}
	return b.String()
}

// FormatError is the top-level dispatcher (mirrors the teacher's
// package-level FormatError): any error gets rendered, with our
// taxonomy's concrete types rendered with full ANSI context.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	type formatter interface{ FormatError(bool) string }
	if f, ok := err.(formatter); ok {
		return f.FormatError(true)
	}
	return fmt.Sprintf("%sError:%s %s", Bold+Red, Reset, err.Error())
}
