// Package match implements the Krauss wildcard comparison and the
// mutex-protected subscription dictionaries (MatchDict, LogMatchDict) built
// on top of it.
package match

// at returns the byte at index i of s, or 0 (the C null terminator) once i
// runs past the end of the string. Modeling the sentinel this way lets
// Krauss follow the original C pointer-walking algorithm index-for-index.
func at(s string, i int) byte {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

// Krauss implements the Krauss wildcard algorithm: a linear two-cursor scan
// where '*' sets a fallback point and advances, and '?' matches any single
// character. It is a literal translation of the hub's FastWildCompare
// (itself the well-known "fast wildcard compare" by Krauss), walking
// pattern/name by index instead of by C string pointer.
func Krauss(pattern, name string) bool {
	w, t := 0, 0
	var wildSeq, tameSeq int

	// Phase 1: advance until end-of-name, or until the first '*'.
	for {
		if at(name, t) == 0 {
			if at(pattern, w) != 0 {
				for at(pattern, w) == '*' {
					w++
					if at(pattern, w) == 0 {
						return true // "ab" matches "ab*"
					}
				}
				return false // "abcd" doesn't match "abc"
			}
			return true // "abc" matches "abc"
		} else if at(pattern, w) == '*' {
			w++
			for at(pattern, w) == '*' {
				w++
			}
			if at(pattern, w) == 0 {
				return true // "abc*" matches "abcd"
			}
			if at(pattern, w) != '?' {
				for at(pattern, w) != at(name, t) {
					t++
					if at(name, t) == 0 {
						return false // "a*bc" doesn't match "ab"
					}
				}
			}
			wildSeq, tameSeq = w, t
			goto phase2
		} else if at(pattern, w) != at(name, t) && at(pattern, w) != '?' {
			return false // "abc" doesn't match "abd"
		}
		w++
		t++
	}

phase2:
	for {
		if at(pattern, w) == '*' {
			w++
			for at(pattern, w) == '*' {
				w++
			}
			if at(pattern, w) == 0 {
				return true // "ab*c*" matches "abcd"
			}
			if at(name, t) == 0 {
				return false // "*bcd*" doesn't match "abc"
			}
			if at(pattern, w) != '?' {
				for at(pattern, w) != at(name, t) {
					t++
					if at(name, t) == 0 {
						return false // "a*b*c" doesn't match "ab"
					}
				}
			}
			wildSeq, tameSeq = w, t
		} else if at(pattern, w) != at(name, t) && at(pattern, w) != '?' {
			if at(name, t) == 0 {
				return false // "*bcd" doesn't match "abc"
			}
			for at(pattern, wildSeq) == '?' {
				wildSeq++
				tameSeq++
			}
			w = wildSeq
			for {
				tameSeq++
				if at(pattern, w) == at(name, tameSeq) {
					break
				}
				if at(name, tameSeq) == 0 {
					return false // "*a*b" doesn't match "ac"
				}
			}
			t = tameSeq
		}

		if at(name, t) == 0 {
			if at(pattern, w) == 0 {
				return true // "*bc" matches "abc"
			}
			return false // "*bc" doesn't match "abcd"
		}
		w++
		t++
	}
}

// Exact reports byte-equality, the cheap subscription kind alongside Krauss.
func Exact(pattern, name string) bool {
	return pattern == name
}
