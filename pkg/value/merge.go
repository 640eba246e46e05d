package value

// MergeFunc composes a base value with a higher precedence overlay.
//
// The orchestrator folds a MergeFunc over layers low to high; alternate
// strategies (a future three-way algorithm for unstructured text) plug in
// through this type without touching the fold.
type MergeFunc func(base, overlay Value) Value

// Merge applies overlay on top of base with merge-patch semantics in the
// style of RFC 7396, generalized over the canonical value model:
//
//   - when both sides are objects, keys merge recursively; an explicit null
//     in the overlay deletes the key (tombstone); keys only present in the
//     base are retained
//   - in every other pairing, including arrays and kind mismatches, the
//     overlay replaces the base wholesale
//
// Folding Merge left to right over ascending layer precedence is
// associative, and Merge(v, v) == v for any v free of null object members.
func Merge(base, overlay Value) Value {
	if base.Kind() != KindObject || overlay.Kind() != KindObject {
		return overlay
	}

	fields := make([]Field, 0, base.Len()+overlay.Len())
	deleted := make(map[string]bool)
	for _, field := range overlay.Fields() {
		if field.Value.IsNull() {
			deleted[field.Key] = true
		}
	}

	for _, field := range base.Fields() {
		if deleted[field.Key] {
			continue
		}
		if over, ok := overlay.Get(field.Key); ok {
			fields = append(fields, F(field.Key, Merge(field.Value, over)))
			continue
		}
		fields = append(fields, field)
	}

	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		seen[field.Key] = true
	}
	for _, field := range overlay.Fields() {
		if seen[field.Key] || field.Value.IsNull() {
			continue
		}
		fields = append(fields, field)
	}

	return Object(fields...)
}
