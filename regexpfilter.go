// SPDX-License-Identifier: MIT

package petscan

import "regexp"

// compileAnchoredRegexp wraps pattern in ^...$ before compiling, matching
// the Rust original's full-string match semantics for the regexp filter.
func compileAnchoredRegexp(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}
