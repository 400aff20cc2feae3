package contracts

import "context"

// ITranslator translates an ordered batch of texts. The result has the same
// length and order as texts, and every entry answers the input at its index.
type ITranslator interface {
	TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error)
}
