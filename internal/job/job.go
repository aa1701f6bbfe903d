// Package job extracts execution jobs from comment text.
//
// Two entry points mirror the two ways users write instructions: ParseComment understands a
// strict statement grammar (`!in <url> "<action>"`), while ParseFreeText treats the whole
// comment as the action and scans it for embedded file URLs.
package job

import (
	"strings"

	"github.com/google/uuid"

	"github.com/octaviuslabs/walter/internal/target"
)

// Keyword opens a strict-grammar statement
const Keyword = "!in"

// Job is one unit of requested work extracted from a comment: an action plus the file(s) it
// targets. A Job with zero targets is representable but must be rejected before it reaches
// the generation engine
type Job struct {
	ID      string
	Keyword string
	Targets []target.Reference
	Action  string
}

type tokenType int

const (
	tokenKeyword tokenType = iota
	tokenURL
	tokenAction
	tokenWS
	tokenNewline
	tokenGarbage
)

type token struct {
	typ   tokenType
	value string
}

// lex tokenizes a comment body. Unrecognized runs of characters become garbage tokens rather
// than lexing errors, so the statement parser can keep scanning past prose
func lex(body string) []token {
	var tokens []token
	rest := body

	for len(rest) > 0 {
		switch {
		case rest[0] == '\n':
			tokens = append(tokens, token{tokenNewline, "\n"})
			rest = rest[1:]
		case rest[0] == ' ' || rest[0] == '\t':
			i := 0
			for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
				i++
			}
			tokens = append(tokens, token{tokenWS, rest[:i]})
			rest = rest[i:]
		case strings.HasPrefix(rest, Keyword):
			tokens = append(tokens, token{tokenKeyword, Keyword})
			rest = rest[len(Keyword):]
		case strings.HasPrefix(rest, "https://"):
			i := strings.IndexAny(rest, " \t\n")
			if i < 0 {
				i = len(rest)
			}
			tokens = append(tokens, token{tokenURL, rest[:i]})
			rest = rest[i:]
		case rest[0] == '"':
			// Non-greedy quoted action; an unterminated quote is garbage
			if i := strings.IndexByte(rest[1:], '"'); i >= 0 {
				tokens = append(tokens, token{tokenAction, rest[1 : i+1]})
				rest = rest[i+2:]
				break
			}
			tokens = append(tokens, token{tokenGarbage, rest})
			rest = ""
		default:
			i := strings.IndexAny(rest, " \t\n")
			if i < 0 {
				i = len(rest)
			}
			tokens = append(tokens, token{tokenGarbage, rest[:i]})
			rest = rest[i:]
		}
	}

	return tokens
}

// ParseComment parses a comment body for strict-grammar statements of the form
// `!in <url> "<action>"` and returns one Job per complete statement, in input order.
// Partial statements are dropped silently; the parser resumes scanning at the next token
func ParseComment(body string) []Job {
	tokens := lex(body)

	var jobs []Job
	for i := 0; i < len(tokens); i++ {
		if tokens[i].typ != tokenKeyword {
			continue
		}
		keyword := tokens[i].value

		j := i + 1
		if j < len(tokens) && tokens[j].typ == tokenWS {
			j++
		}
		if j >= len(tokens) || tokens[j].typ != tokenURL {
			continue
		}
		ref, err := target.Parse(tokens[j].value)
		if err != nil {
			continue
		}

		j++
		if j < len(tokens) && tokens[j].typ == tokenWS {
			j++
		}
		if j >= len(tokens) || tokens[j].typ != tokenAction {
			continue
		}

		jobs = append(jobs, Job{
			ID:      uuid.NewString(),
			Keyword: keyword,
			Targets: []target.Reference{ref},
			Action:  tokens[j].value,
		})
		i = j
	}

	return jobs
}

// ParseFreeText builds a single Job from an arbitrary comment body. The targets are all
// GitHub blob URLs embedded in the text (unparseable URLs skipped) and the action is the
// entire body verbatim. The returned Job may have zero targets; callers must reject such
// jobs rather than proceed with an unscoped action
func ParseFreeText(body string) Job {
	return Job{
		ID:      uuid.NewString(),
		Targets: target.ExtractURLs(body),
		Action:  body,
	}
}
