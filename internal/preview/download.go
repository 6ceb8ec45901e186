package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/nf-ci-console/internal/gateway"
)

const maxNameLen = 100

// Saved is a downloaded artifact on disk
type Saved struct {
	Path string
	Size int64
}

func (s Saved) String() string {
	return fmt.Sprintf("%s (%s)", s.Path, humanize.Bytes(uint64(s.Size)))
}

// SanitizeName makes s usable as part of a file name. The result is at
// most maxNameLen bytes and never splits a UTF-8 sequence.
func SanitizeName(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "-", " ", "_")
	s = r.Replace(s)
	if len(s) > maxNameLen {
		cut := maxNameLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// SingleFallbackName names a single-test log when the response carries no filename
func SingleFallbackName(taskID, testName string) string {
	return fmt.Sprintf("task_%s_%s.log", SanitizeName(taskID), SanitizeName(testName))
}

// AllFallbackName names a task's log archive when the response carries no filename
func AllFallbackName(taskID string) string {
	return fmt.Sprintf("task_%s_logs.zip", SanitizeName(taskID))
}

// safeFilename strips any directory part of a server-supplied name
func safeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	switch base {
	case ".", "..", "/", "":
		return ""
	}
	return base
}

// DownloadSelected saves the log of the selected failed test into dir
func (r *Resolver) DownloadSelected(ctx context.Context, p *Preview, dir string) (Saved, error) {
	name, err := p.SelectedTest()
	if err != nil {
		return Saved{}, err
	}
	art, err := r.gw.DownloadSingle(ctx, p.TaskID, name)
	if err != nil {
		return Saved{}, fmt.Errorf("download %s of task %s: %w", name, p.TaskID, err)
	}
	return r.save(art, dir, SingleFallbackName(p.TaskID, name))
}

// DownloadAll saves every log of task id into dir
func (r *Resolver) DownloadAll(ctx context.Context, id, dir string) (Saved, error) {
	art, err := r.gw.Download(ctx, id)
	if err != nil {
		return Saved{}, fmt.Errorf("download logs of task %s: %w", id, err)
	}
	return r.save(art, dir, AllFallbackName(id))
}

func (r *Resolver) save(art *gateway.Artifact, dir, fallback string) (Saved, error) {
	defer art.Body.Close()

	name := safeFilename(art.Filename)
	if name == "" {
		name = fallback
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Saved{}, fmt.Errorf("create download dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return Saved{}, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := io.Copy(f, art.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Saved{}, fmt.Errorf("write %s: %w", path, err)
	}

	saved := Saved{Path: path, Size: n}
	r.log.WithField("path", path).Infof("saved %s", humanize.Bytes(uint64(n)))
	return saved, nil
}
