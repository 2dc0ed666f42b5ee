package record

import "path"

// ShardPath maps a crate name to its file location inside the index tree,
// bounding directory fan-out for large registries:
//
//	"a"    -> "1/a"
//	"ab"   -> "2/ab"
//	"abc"  -> "3/a/abc"
//	"abcd" -> "ab/cd/abcd"
//
// The name is lowercased throughout, so sharding is case-insensitive. The
// name must already have passed ValidateName; the function is total over
// validated names. Separators are forward slashes, matching git tree paths.
func ShardPath(name string) string {
	lower := lowerASCII(name)

	switch len(lower) {
	case 1:
		return path.Join("1", lower)
	case 2:
		return path.Join("2", lower)
	case 3:
		return path.Join("3", lower[0:1], lower)
	default:
		return path.Join(lower[0:2], lower[2:4], lower)
	}
}

// CanonicalName folds a crate name for similarity comparison: lowercase with
// hyphens mapped to underscores. Two names with the same canonical form are
// considered too similar to coexist in one index.
func CanonicalName(name string) string {
	folded := []byte(lowerASCII(name))
	for i, c := range folded {
		if c == '-' {
			folded[i] = '_'
		}
	}
	return string(folded)
}

// Validated names are ASCII, so avoid Unicode case folding.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
