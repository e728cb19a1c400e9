package search

// FusionMode selects the strategy used to merge lexical and semantic lists.
type FusionMode string

const (
	// FusionWeighted is client-side min-max normalization with a weighted sum.
	// Portable: makes no assumptions about backend capabilities.
	FusionWeighted FusionMode = "weighted"
	// FusionRank is rank-based fusion. Served by the index backend when it
	// supports native multi-retriever queries, reciprocal-rank otherwise.
	FusionRank FusionMode = "rank"
)

// HybridMode selects which semantic list is fused against the lexical one.
type HybridMode string

const (
	// HybridText fuses against the text retrieval model.
	HybridText HybridMode = "text"
	// HybridImage fuses against the cross-modal model.
	HybridImage HybridMode = "image"
	// HybridBoth fuses against the union of the configured model pair.
	HybridBoth HybridMode = "both"
)
