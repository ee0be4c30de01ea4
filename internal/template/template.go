// Package template implements the {placeholder} substitution used for email
// subjects and bodies. Templates are plain text (usually HTML) with literal
// brace tokens; there are no conditionals, loops, or escaping rules.
package template

import (
	"sort"
	"strings"
)

// ─── RENDERING ────────────────────────────────────────────────────────────────

// Render substitutes {token} occurrences in tpl with values from fields.
// Field keys are bare token names without braces ("name", not "{name}").
//
// The scan is single-pass over tpl: substituted values are never re-scanned,
// so a field value that itself contains "{email}" comes out literally. Tokens
// with no matching field stay verbatim in the output, as does any brace that
// never closes. A "{" followed by another "{" before any "}" is treated as
// literal text rather than the start of a token.
func Render(tpl string, fields map[string]string) string {
	var b strings.Builder
	b.Grow(len(tpl) + len(tpl)/4)

	for i := 0; i < len(tpl); {
		open := strings.IndexByte(tpl[i:], '{')
		if open < 0 {
			b.WriteString(tpl[i:])
			break
		}
		b.WriteString(tpl[i : i+open])
		i += open

		end := strings.IndexByte(tpl[i+1:], '}')
		if end < 0 {
			// No closing brace anywhere ahead; the rest is literal.
			b.WriteString(tpl[i:])
			break
		}
		token := tpl[i+1 : i+1+end]
		if strings.IndexByte(token, '{') >= 0 {
			// Nested opener: this brace is literal, rescan from the inner one.
			b.WriteByte('{')
			i++
			continue
		}
		if val, ok := fields[token]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(tpl[i : i+end+2])
		}
		i += end + 2
	}

	return b.String()
}

// Tokens returns the distinct token names referenced by tpl, in first-seen
// order. It uses the same scanning rules as Render, so a token it reports is
// exactly one Render would substitute. Used by the preview endpoint to tell
// callers which placeholders a custom template actually consumes.
func Tokens(tpl string) []string {
	var out []string
	seen := map[string]bool{}

	for i := 0; i < len(tpl); {
		open := strings.IndexByte(tpl[i:], '{')
		if open < 0 {
			break
		}
		i += open
		end := strings.IndexByte(tpl[i+1:], '}')
		if end < 0 {
			break
		}
		token := tpl[i+1 : i+1+end]
		if strings.IndexByte(token, '{') >= 0 {
			i++
			continue
		}
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
		i += end + 2
	}

	return out
}

// Unresolved returns the tokens in tpl that fields does not cover, sorted
// alphabetically. Handy for warning a user that their custom template
// references a placeholder nothing will ever fill.
func Unresolved(tpl string, fields map[string]string) []string {
	var out []string
	for _, tok := range Tokens(tpl) {
		if _, ok := fields[tok]; !ok {
			out = append(out, tok)
		}
	}
	sort.Strings(out)
	return out
}
