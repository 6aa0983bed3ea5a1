package store

import "maps"

// MergeTopLevel returns a copy of base with every top-level key of patch
// written over it. Nested objects are replaced, not merged.
func MergeTopLevel(base, patch Background) Background {
	out := make(Background, len(base)+len(patch))
	maps.Copy(out, base)
	maps.Copy(out, patch)
	return out
}
