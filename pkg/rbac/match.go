package rbac

// Permission identifiers are lowercase "resource:action" strings, optionally
// with a third ":qualifier" segment. Role permission entries may additionally
// use shell-glob wildcards: '*' matches any run of characters and '?' matches
// exactly one. Matching is anchored at both ends; there are no partial
// matches.

// Wildcard is the literal permission that grants everything without
// expansion.
const Wildcard = "*"

// ValidPermissionID reports whether s is a structurally valid permission
// identifier (no wildcards allowed).
func ValidPermissionID(s string) bool {
	return validPermissionString(s, false)
}

// ValidPermissionPattern reports whether s is a structurally valid permission
// identifier or wildcard pattern.
func ValidPermissionPattern(s string) bool {
	return s == Wildcard || validPermissionString(s, true)
}

// HasWildcard reports whether s contains a glob metacharacter.
func HasWildcard(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '*' || s[i] == '?' {
			return true
		}
	}
	return false
}

func validPermissionString(s string, allowGlob bool) bool {
	if s == "" || len(s) > 256 {
		return false
	}
	segments := 1
	segLen := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			if segLen == 0 {
				return false // empty segment
			}
			segments++
			segLen = 0
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-':
			segLen++
		case c == '*' || c == '?':
			if !allowGlob {
				return false
			}
			segLen++
		default:
			return false
		}
	}
	// "resource:action" with an optional ":qualifier"; a bare resource is
	// not a permission.
	return segLen > 0 && segments >= 2 && segments <= 3
}

// MatchPermission reports whether the glob pattern matches the permission
// identifier. The match is deterministic and total over the whole identifier.
func MatchPermission(pattern, ident string) bool {
	if pattern == Wildcard {
		return true
	}
	return globMatch(pattern, ident)
}

// globMatch is an iterative glob matcher with single-star backtracking, the
// standard linear formulation.
func globMatch(pattern, s string) bool {
	var p, i int
	starP, starI := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starI = i
			p++
		case starP >= 0:
			// Backtrack: let the last '*' absorb one more character.
			starI++
			i = starI
			p = starP + 1
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchIP performs a case-sensitive glob match of pattern against an IP
// address string ("10.0.*" style).
func matchIP(pattern, ip string) bool {
	return globMatch(pattern, ip)
}
