// Package publish copies or links a task's declared outputs into the
// sample-keyed output tree. The publisher is the only component that
// writes under the run outdir; destinations are id-scoped so samples
// never race each other, and publishes for the same id are serialized
// so colliding-id tuples resolve deterministically in channel order.
package publish

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/expr"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
	"github.com/dustin/go-humanize"
)

// Publisher places task outputs under outdir/<sample>/.
type Publisher struct {
	outDir string
	eval   *expr.Evaluator
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per sample id
}

// New creates a Publisher rooted at outDir.
func New(outDir string, logger *slog.Logger) *Publisher {
	return &Publisher{
		outDir: outDir,
		eval:   expr.New(),
		logger: logger.With("component", "publisher"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// OutDir returns the output tree root.
func (p *Publisher) OutDir() string { return p.outDir }

func (p *Publisher) sampleLock(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

// Publish applies the stage's publish rule to a succeeded task's
// output tuple. It is idempotent: re-publishing identical outputs
// leaves the tree unchanged. Errors are returned as *model.PublishError
// and must not fail the task; the caller logs and records them.
func (p *Publisher) Publish(stage *pipeline.StageSpec, output model.SampleTuple) error {
	rule := stage.Publish
	if rule == nil {
		return nil
	}

	lock := p.sampleLock(output.ID)
	lock.Lock()
	defer lock.Unlock()

	dirCtx := expr.NewContext().WithSample(output.ID, output.Files)
	subDir, err := p.eval.Render(rule.DirTemplate(), dirCtx)
	if err != nil {
		return &model.PublishError{Stage: stage.Name, SampleID: output.ID, Err: fmt.Errorf("dir template: %w", err)}
	}
	destDir := filepath.Join(p.outDir, subDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &model.PublishError{Stage: stage.Name, SampleID: output.ID, Path: destDir, Err: err}
	}

	mode := rule.ModeOrDefault()
	for _, src := range output.Files {
		base := filepath.Base(src)
		if rule.Pattern != "" {
			ok, _ := filepath.Match(rule.Pattern, base)
			if !ok {
				continue
			}
		}

		dest := filepath.Join(destDir, base)
		size, err := p.place(src, dest, mode)
		if err != nil {
			return &model.PublishError{Stage: stage.Name, SampleID: output.ID, Path: dest, Err: err}
		}
		p.logger.Info("published",
			"stage", stage.Name, "sample", output.ID, "file", base,
			"mode", string(mode), "size", humanize.Bytes(uint64(size)))
	}
	return nil
}

// place materializes src at dest per the publish mode and returns the
// source size. Existing destinations that already point at (or equal)
// the source are left alone; anything else is replaced atomically.
func (p *Publisher) place(src, dest string, mode pipeline.PublishMode) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	switch mode {
	case pipeline.PublishLink:
		if destInfo, err := os.Stat(dest); err == nil && os.SameFile(srcInfo, destInfo) {
			return srcInfo.Size(), nil
		}
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return 0, err
		}
		if err := os.Link(src, dest); err != nil {
			return 0, err
		}
		return srcInfo.Size(), nil

	case pipeline.PublishSymlink:
		abs, err := filepath.Abs(src)
		if err != nil {
			return 0, err
		}
		if target, err := os.Readlink(dest); err == nil && target == abs {
			return srcInfo.Size(), nil
		}
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return 0, err
		}
		if err := os.Symlink(abs, dest); err != nil {
			return 0, err
		}
		return srcInfo.Size(), nil

	default: // copy
		// Write-then-rename keeps a re-publish from ever exposing a
		// partially written file.
		tmp, err := os.CreateTemp(filepath.Dir(dest), ".publish-*")
		if err != nil {
			return 0, err
		}
		tmpPath := tmp.Name()
		in, err := os.Open(src)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, err
		}
		_, copyErr := io.Copy(tmp, in)
		in.Close()
		closeErr := tmp.Close()
		if copyErr != nil || closeErr != nil {
			os.Remove(tmpPath)
			if copyErr != nil {
				return 0, copyErr
			}
			return 0, closeErr
		}
		if err := os.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
			os.Remove(tmpPath)
			return 0, err
		}
		if err := os.Rename(tmpPath, dest); err != nil {
			os.Remove(tmpPath)
			return 0, err
		}
		return srcInfo.Size(), nil
	}
}
