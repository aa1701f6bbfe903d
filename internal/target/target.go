// Package target parses GitHub blob URLs into structured file references.
package target

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidReference indicates that a URL could not be parsed into a Reference. Callers
// should treat the offending URL as "not a target" and continue, rather than abort the batch
var ErrInvalidReference = fmt.Errorf("invalid target reference")

// Reference is the structured decomposition of a GitHub blob URL:
// https://github.com/{owner}/{repo}/blob/{branch}/{path...}[#L{start}[-L{end}]]
type Reference struct {
	Owner    string
	Repo     string
	Branch   string
	FilePath string // Always begins with a leading slash; see Path for the repository form

	// Optional 1-indexed inclusive line range. A nil StartLine means "whole file"
	StartLine *int
	EndLine   *int

	// The URL this reference was parsed from
	URL string
}

// Path returns the repository-relative file path with the leading slash stripped, the form
// expected by the GitHub contents and tree APIs
func (r Reference) Path() string {
	return strings.TrimPrefix(r.FilePath, "/")
}

// FileContent is a fetched file body along with the reference that located it. Focus holds
// the StartLine..EndLine slice of the body when the reference carries a line range
type FileContent struct {
	Ref   Reference
	Body  string
	Focus string
}

// Parse parses a GitHub blob URL into a Reference. URLs without a scheme (bare
// "github.com/...") are accepted. Returns an error wrapping ErrInvalidReference for anything
// that does not look like a blob URL
func Parse(raw string) (Reference, error) {
	withScheme := raw
	if !strings.Contains(withScheme, "://") {
		withScheme = "https://" + withScheme
	}

	u, err := url.Parse(withScheme)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %s: %v", ErrInvalidReference, raw, err)
	}

	// Path segments: "" / owner / repo / "blob" / branch / path...
	parts := strings.Split(u.Path, "/")
	if len(parts) < 6 {
		return Reference{}, fmt.Errorf("%w: %s: too few path segments", ErrInvalidReference, raw)
	}
	if parts[3] != "blob" {
		return Reference{}, fmt.Errorf("%w: %s: missing blob segment", ErrInvalidReference, raw)
	}

	ref := Reference{
		Owner:    parts[1],
		Repo:     parts[2],
		Branch:   parts[4],
		FilePath: "/" + strings.Join(parts[5:], "/"),
		URL:      raw,
	}

	ref.StartLine, ref.EndLine = parseLineFragment(u.Fragment)

	return ref, nil
}

// parseLineFragment parses a "L10" or "L10-L20" URL fragment into a line range. Pieces that
// do not parse as line numbers are ignored
func parseLineFragment(fragment string) (start *int, end *int) {
	if fragment == "" {
		return nil, nil
	}

	pieces := strings.Split(fragment, "-")

	if n, err := strconv.Atoi(strings.TrimPrefix(pieces[0], "L")); err == nil {
		start = &n
	}
	if len(pieces) > 1 {
		if n, err := strconv.Atoi(strings.TrimPrefix(pieces[1], "L")); err == nil {
			end = &n
		}
	}

	return start, end
}

var githubURLPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?github\.com[-A-Za-z0-9+&@#/%=~_|$?!:,.]*[A-Za-z0-9+&@#/%=~_|$]`)

// ExtractURLs scans free text for embedded GitHub URLs and parses each into a Reference.
// URLs that fail to parse as blob references are skipped
func ExtractURLs(text string) []Reference {
	matches := githubURLPattern.FindAllString(text, -1)

	refs := []Reference{}
	for _, match := range matches {
		ref, err := Parse(match)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}
