package geometry

import "github.com/rotisserie/eris"

// Error kinds for geometry reconstruction. Callers match them with eris.Is.
// MalformedGeometry and the semantics errors are recoverable at the feature
// level: the feature (or just its semantics) is skipped and the export
// continues.
var (
	// ErrMalformedGeometry marks a ring or surface shape that cannot be
	// assembled (too few vertices, missing exterior ring, non-finite
	// coordinates).
	ErrMalformedGeometry = eris.New("geometry: malformed geometry")

	// ErrSemanticsMismatch marks a semantic label array whose length does not
	// equal the boundary's surface count.
	ErrSemanticsMismatch = eris.New("geometry: semantics length mismatch")

	// ErrSemanticsMapping marks a semantic code that is absent from the
	// configured code-to-name mapping.
	ErrSemanticsMapping = eris.New("geometry: semantics code not in mapping")
)
