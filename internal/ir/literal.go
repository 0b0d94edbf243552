package ir

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// QuoteString renders s as a double-quoted TypeScript string literal.
func QuoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// UnquoteString strips the quotes of a single- or double-quoted string literal and
// resolves the common escape sequences. Text that is not quoted is returned unchanged.
func UnquoteString(lit string) string {
	if len(lit) < 2 {
		return lit
	}
	q := lit[0]
	if (q != '"' && q != '\'' && q != '`') || lit[len(lit)-1] != q {
		return lit
	}
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}

	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '0':
			sb.WriteByte(0)
		case 'u':
			if i+4 < len(body) {
				if v, err := strconv.ParseUint(body[i+1:i+5], 16, 32); err == nil {
					var buf [utf8.UTFMax]byte
					n := utf8.EncodeRune(buf[:], rune(v))
					sb.Write(buf[:n])
					i += 4
					continue
				}
			}
			sb.WriteByte('u')
		default:
			sb.WriteByte(body[i])
		}
	}
	return sb.String()
}

// Expression renders the literal as a TypeScript token: quoted for strings, raw otherwise.
func (a LiteralAttrs) Expression() string {
	if a.LiteralKind == LiteralString {
		return QuoteString(a.Value)
	}
	if a.Value == "" {
		return "undefined"
	}
	return a.Value
}
