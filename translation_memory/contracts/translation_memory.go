package contracts

import "context"

// IStore remembers translations by target language and masked source text.
// Implementations must be safe for concurrent use.
type IStore interface {
	Get(ctx context.Context, targetLang, source string) (string, bool, error)
	Put(ctx context.Context, targetLang, source, translation string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (map[string]interface{}, error)
	Close() error
}
