package lsh

import "time"

// Observer receives search timing. Implementations must be safe for
// concurrent use since searches may overlap.
type Observer interface {
	SearchStarted(numQueries int)
	SearchFinished(numQueries int, elapsed time.Duration)
}
