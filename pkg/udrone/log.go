package udrone

import (
	"io"

	"github.com/rs/zerolog"
)

// newDiscardLogger is the default sink: library consumers get silence
// unless they opt into WithLogger.
func newDiscardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
