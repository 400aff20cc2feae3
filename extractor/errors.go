package extractor

import "errors"

var (
	// ErrUnsupportedGrammar means no grammar is registered for a category.
	// Callers copy the file through unchanged.
	ErrUnsupportedGrammar = errors.New("unsupported grammar")
	// ErrMalformedSource means the file could not be parsed against its
	// grammar. Callers copy the file through unchanged.
	ErrMalformedSource = errors.New("malformed source")
	// ErrInvalidLayout is returned when located spans overlap, run out of
	// order or do not render back to the original bytes.
	ErrInvalidLayout = errors.New("invalid span layout")
	// ErrUnsafeTranslation marks a translation that cannot be placed inside
	// its delimiters.
	ErrUnsafeTranslation = errors.New("translation would break surrounding syntax")
	// ErrPlaceholderMismatch marks a translation that lost, duplicated or
	// invented a protected-run placeholder.
	ErrPlaceholderMismatch = errors.New("placeholder mismatch")
)

// IsPassThrough reports whether err only means "copy the file unchanged".
func IsPassThrough(err error) bool {
	return errors.Is(err, ErrUnsupportedGrammar) ||
		errors.Is(err, ErrMalformedSource) ||
		errors.Is(err, ErrInvalidLayout)
}
