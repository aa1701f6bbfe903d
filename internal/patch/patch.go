// Package patch applies model-generated diff text to original file bodies.
package patch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrApply indicates that a diff could not be applied to its stated target. The edit must
// be discarded; nothing is partially applied
var ErrApply = errors.New("failed to apply patch")

var fileHeaderPattern = regexp.MustCompile(`^(-{3}|\+{3})\s`)

// stripFileHeaders removes `--- a/...` and `+++ b/...` lines. Model-generated diffs carry
// synthetic paths that mean nothing to the patch parser
func stripFileHeaders(diff string) string {
	lines := strings.Split(diff, "\n")

	filtered := lines[:0]
	for _, line := range lines {
		if fileHeaderPattern.MatchString(line) {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\n")
}

// Merge applies unified-diff-style patch text against the original body and returns the new
// body. Hunks are located with fuzzy context matching, so minor line-offset drift in the
// diff is tolerated. Returns an error wrapping ErrApply when the diff cannot be parsed or
// any hunk's context cannot be found in the original; the original is never partially
// modified on failure.
//
// Applying a diff to a body it has already been applied to is unsupported; the result is
// unspecified
func Merge(original string, diff string) (string, error) {
	dmp := diffmatchpatch.New()

	patches, err := dmp.PatchFromText(stripFileHeaders(diff))
	if err != nil {
		return "", fmt.Errorf("%w: malformed diff: %v", ErrApply, err)
	}
	if len(patches) == 0 {
		return "", fmt.Errorf("%w: diff contains no hunks", ErrApply)
	}

	merged, applied := dmp.PatchApply(patches, original)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("%w: hunk %d context not found", ErrApply, i+1)
		}
	}

	return merged, nil
}
