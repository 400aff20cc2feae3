package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/morler/repo-translate/extractor"
	"github.com/morler/repo-translate/reassembler"
	"github.com/morler/repo-translate/resolver"
	"github.com/morler/repo-translate/utils"
)

// vcsDirs are neither translated nor mirrored into the output tree.
var vcsDirs = map[string]bool{".git": true, ".svn": true, ".hg": true, ".bzr": true}

type fileEntry struct {
	rel  string
	abs  string
	size int64
	perm fs.FileMode
}

// fileState follows one file through the run.
type fileState struct {
	entry  fileEntry
	result FileResult

	unit      *extractor.TranslationUnit
	outcomes  []reassembler.Outcome
	pending   int
	abandoned bool
}

func (st *fileState) fail(err error) {
	st.result.Status = StatusErrored
	st.result.err = err
	st.result.Error = err.Error()
}

// resolvePaths makes in and out absolute and rejects layouts where writing
// the output would overwrite the input.
func resolvePaths(in, out string) (string, string, error) {
	absIn, err := filepath.Abs(in)
	if err != nil {
		return "", "", fmt.Errorf("resolve input: %w", err)
	}
	info, err := os.Stat(absIn)
	if err != nil {
		return "", "", fmt.Errorf("read input: %w", err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("input %s is not a directory", absIn)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return "", "", fmt.Errorf("resolve output: %w", err)
	}
	if absOut == absIn || within(absIn, absOut) {
		return "", "", fmt.Errorf("output %s must not contain the input %s", absOut, absIn)
	}
	return absIn, absOut, nil
}

// within reports whether path lies inside dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// walk lists the regular files under in, in lexical order. The output tree,
// the translation memory and VCS metadata are skipped.
func (o *Orchestrator) walk(ctx context.Context, in, out string) ([]fileEntry, error) {
	var skip []string
	skip = append(skip, out)
	if o.settings.CacheDir != "" {
		if abs, err := filepath.Abs(o.settings.CacheDir); err == nil {
			skip = append(skip, abs)
		}
	}

	var entries []fileEntry
	err := filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path == in {
				return nil
			}
			if vcsDirs[d.Name()] {
				return filepath.SkipDir
			}
			for _, s := range skip {
				if path == s {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			o.logger.Debug("skipping non-regular file", o.logger.Args("file", path))
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(in, path)
		if err != nil {
			return err
		}
		entries = append(entries, fileEntry{
			rel:  filepath.ToSlash(rel),
			abs:  path,
			size: info.Size(),
			perm: info.Mode().Perm(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", in, err)
	}
	return entries, nil
}

// load classifies and extracts one file. Files without translatable text are
// copied to the output tree right away.
func (o *Orchestrator) load(ctx context.Context, st *fileState, out string) {
	st.result = FileResult{Path: st.entry.rel, Category: extractor.Opaque.String()}
	if ctx.Err() != nil {
		st.abandoned = true
		st.result.Status = StatusAbandoned
		st.result.Reason = "canceled before extraction"
		return
	}

	f, err := os.Open(st.entry.abs)
	if err != nil {
		st.fail(fmt.Errorf("open: %w", err))
		return
	}
	defer f.Close()

	head := make([]byte, resolver.SniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		st.fail(fmt.Errorf("read: %w", err))
		return
	}
	head = head[:n]

	category := o.resolver.Resolve(st.entry.rel, st.entry.size, head)
	st.result.Category = category.String()
	if category == extractor.Opaque {
		o.passThrough(st, out, nil, "opaque")
		return
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		st.fail(fmt.Errorf("read: %w", err))
		return
	}
	content := append(head, rest...)

	unit, err := o.extractor.Extract(ctx, st.entry.rel, category, content)
	switch {
	case err != nil && extractor.IsPassThrough(err):
		if errors.Is(err, extractor.ErrUnsupportedGrammar) {
			o.logger.Debug("no grammar for file", o.logger.Args("file", st.entry.rel, "category", category.String()))
		} else {
			o.logger.Warn("source could not be parsed, copying unchanged", o.logger.Args("file", st.entry.rel, "error", err))
		}
		o.passThrough(st, out, content, err.Error())
		return
	case err != nil && ctx.Err() != nil:
		st.abandoned = true
		st.result.Status = StatusAbandoned
		st.result.Reason = "canceled during extraction"
		return
	case err != nil:
		st.fail(fmt.Errorf("extract: %w", err))
		return
	}

	st.result.Spans = len(unit.Spans)
	if unit.Translatable() == 0 {
		o.passThrough(st, out, content, "no translatable text")
		return
	}
	st.unit = unit
	st.outcomes = make([]reassembler.Outcome, len(unit.Spans))
	if o.settings.Preview {
		st.result.Status = StatusPreviewed
	}
}

// passThrough copies a file unchanged. content may be nil, in which case the
// file is streamed from disk.
func (o *Orchestrator) passThrough(st *fileState, out string, content []byte, reason string) {
	st.result.Status = StatusPassthrough
	st.result.Reason = reason
	if o.settings.Preview {
		return
	}

	dest := filepath.Join(out, filepath.FromSlash(st.entry.rel))
	var err error
	if content == nil {
		err = utils.CopyFileAtomic(st.entry.abs, dest, st.entry.perm)
	} else {
		err = utils.WriteFileAtomic(dest, content, st.entry.perm)
	}
	if err != nil {
		st.fail(err)
		o.logger.Error("could not copy file", o.logger.Args("file", st.entry.rel, "error", err))
		return
	}
	o.notify(st.result)
}

// finalize reassembles and writes a unit once every batch carrying its
// spans has resolved.
func (o *Orchestrator) finalize(st *fileState, out string) {
	if st.abandoned {
		st.result.Status = StatusAbandoned
		st.result.Reason = "canceled while translating"
		return
	}

	res, err := reassembler.Reassemble(st.unit, st.outcomes)
	if err != nil {
		st.fail(err)
		o.logger.Error("could not reassemble file", o.logger.Args("file", st.entry.rel, "error", err))
		return
	}

	dest := filepath.Join(out, filepath.FromSlash(st.entry.rel))
	if err := utils.WriteFileAtomic(dest, res.Content, st.entry.perm); err != nil {
		st.fail(err)
		o.logger.Error("could not write file", o.logger.Args("file", st.entry.rel, "error", err))
		return
	}

	o.remember(st, res)
	st.result.Translated = res.Translated
	st.result.Fallbacks = res.Fallbacks
	if res.Partial() {
		st.result.Status = StatusPartial
		o.logger.Warn("file partially translated", o.logger.Args("file", st.entry.rel, "translated", res.Translated, "fallbacks", len(res.Fallbacks)))
	} else {
		st.result.Status = StatusTranslated
		o.logger.Info("file translated", o.logger.Args("file", st.entry.rel, "spans", res.Translated))
	}
	o.notify(st.result)
	// the unit is not needed after its output is written
	st.unit, st.outcomes = nil, nil
}

// remember stores the translations the reassembler accepted. Spans that fell
// back are left out so the next run asks the provider again.
func (o *Orchestrator) remember(st *fileState, res *reassembler.Result) {
	if o.memory == nil {
		return
	}
	rejected := make(map[int]bool, len(res.Fallbacks))
	for _, fb := range res.Fallbacks {
		rejected[fb.Span] = true
	}
	// a canceled run must still record what it wrote
	ctx := context.Background()
	for i, oc := range st.outcomes {
		if oc.Status != reassembler.Translated || rejected[i] {
			continue
		}
		if err := o.memory.Put(ctx, o.settings.TargetLang, st.unit.Spans[i].Masked(), oc.Text); err != nil {
			o.logger.Warn("translation memory write failed", o.logger.Args("file", st.entry.rel, "error", err))
			return
		}
	}
}
