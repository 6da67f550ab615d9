package constants

// Scope filter caps
const (
	// MaxVisibleNodes is the most nodes the graph canvas renders at once
	MaxVisibleNodes = 20
	// MaxVisibleEdges is the most edges the graph canvas renders at once
	MaxVisibleEdges = 40
	// MaxPinnedNodes is the pin limit; pinning more evicts the oldest pin
	MaxPinnedNodes = 5
	// ForensicsHops is the BFS depth of the forensics layer around the focus node
	ForensicsHops = 2
	// HopTrimDistance is the hop distance at which nodes are hidden unless three hops are shown
	HopTrimDistance = 3
)

// Layout constants
const (
	// ReasonablePositionBound is the largest saved |x| or |y| still trusted as a position
	ReasonablePositionBound = 1800.0
	// GridColumns is the column count of the fallback grid layout
	GridColumns = 5
	// GridSpacingX is the horizontal spacing of the fallback grid
	GridSpacingX = 220.0
	// GridSpacingY is the vertical spacing of the fallback grid
	GridSpacingY = 140.0
)

// Diagnostics constants
const (
	// MergeSuggestionThreshold is the minimum token overlap for a merge suggestion
	MergeSuggestionThreshold = 0.74
	// CanonicalMaxLength truncates canonical text
	CanonicalMaxLength = 120
	// LowProvenanceThreshold marks nodes with weak sourcing
	LowProvenanceThreshold = 0.42
	// StaleAfterDays marks nodes nobody has touched in a while
	StaleAfterDays = 45
)

// Editor constants
const (
	// ConfirmConfidenceBoost is added to a node's confidence when confirmed
	ConfirmConfidenceBoost = 0.08
	// DeprecateConfidencePenalty is subtracted from a node's confidence when deprecated
	DeprecateConfidencePenalty = 0.2

	TagConfirmed  = "confirmed"
	TagDeprecated = "deprecated"
)

// Graph endpoint actions
const (
	ActionSave            = "save"
	ActionPublishMemoryMD = "publish-memory-md"
	ModeBootstrap         = "bootstrap"
)
