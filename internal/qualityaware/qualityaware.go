// Package qualityaware provides the QualityAware<T> pair from spec.md
// §3: every piece of discovery state that is partitioned by ASIL level
// carries one value for the ASIL-B view and one for the ASIL-QM view.
package qualityaware

// Pair holds one value per ASIL level. The ASIL-B ⊆ ASIL-QM invariant
// (spec.md §3: "whenever the ASIL-B side contains an instance, the
// ASIL-QM side contains it too") is a property callers must maintain
// when T is a collection type -- Pair itself is a plain container.
type Pair[T any] struct {
	AsilB  T
	AsilQM T
}
