package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/morler/repo-translate/extractor"
)

// RenderSpans prints every span of a unit with its position, kind and
// masked text, highlighting the original bytes in the unit's language.
func RenderSpans(ctx context.Context, w io.Writer, unit *extractor.TranslationUnit, language, theme string) error {
	fmt.Fprintf(w, "%s (%s, %d spans)\n", unit.Path, unit.Category, len(unit.Spans))
	for i, span := range unit.Spans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		state := ""
		if span.IsEmpty() {
			state = " identity"
		}
		fmt.Fprintf(w, "  #%d line %d %s%s\n", i, unit.LineOf(span.Start), span.Kind, state)

		var buf bytes.Buffer
		original := string(unit.Content[span.Start:span.End])
		if err := quick.Highlight(&buf, original, language, "terminal256", theme); err != nil {
			buf.Reset()
			buf.WriteString(original)
		}
		fmt.Fprint(w, indent(buf.String(), "    | "))
		if masked := span.Masked(); masked != span.Text {
			fmt.Fprint(w, indent(masked, "    > "))
		}
	}
	return nil
}

func indent(s, prefix string) string {
	s = strings.TrimRight(s, "\n")
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix) + "\n"
}
