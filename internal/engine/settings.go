package engine

// Settings are the tunable knobs of the pipeline. Zero values mean "use the
// default"; manifest header settings override the corresponding fields per
// document type.
type Settings struct {
	// HeaderSearchWindow is how many leading rows of each sheet the
	// classifier buffers while hunting for a header row.
	HeaderSearchWindow int

	// HeaderScoreThreshold is the minimum weighted header score a row must
	// reach to be eligible as a header.
	HeaderScoreThreshold float64

	// MappingScoreThreshold is the minimum weighted detector score a
	// column/target pair needs before the column can be mapped.
	MappingScoreThreshold float64

	// MappingSampleRows caps how many data rows the mapper samples per
	// table when scoring columns against targets.
	MappingSampleRows int

	// BlankRunLimit is the number of consecutive blank (or sparse) rows
	// that terminates a table.
	BlankRunLimit int

	// SparseRowRatio is the non-empty-cell fraction, relative to the header
	// width, below which a row counts toward the blank run.
	SparseRowRatio float64
}

const (
	defaultHeaderSearchWindow    = 25
	defaultHeaderScoreThreshold  = 1.0
	defaultMappingScoreThreshold = 1.0
	defaultMappingSampleRows     = 100
	defaultBlankRunLimit         = 2
	defaultSparseRowRatio        = 0.2
)

func (s Settings) withDefaults() Settings {
	if s.HeaderSearchWindow <= 0 {
		s.HeaderSearchWindow = defaultHeaderSearchWindow
	}
	if s.HeaderScoreThreshold <= 0 {
		s.HeaderScoreThreshold = defaultHeaderScoreThreshold
	}
	if s.MappingScoreThreshold <= 0 {
		s.MappingScoreThreshold = defaultMappingScoreThreshold
	}
	if s.MappingSampleRows <= 0 {
		s.MappingSampleRows = defaultMappingSampleRows
	}
	if s.BlankRunLimit <= 0 {
		s.BlankRunLimit = defaultBlankRunLimit
	}
	if s.SparseRowRatio <= 0 {
		s.SparseRowRatio = defaultSparseRowRatio
	}
	return s
}
