package batch

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type mockRenderer struct {
	mu      sync.Mutex
	formats map[string]imaging.Format
}

func (m *mockRenderer) Process(src io.Reader, dst io.Writer, _ model.WatermarkOptions, format imaging.Format) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if string(data) == "broken" {
		return errors.New("decode base image: broken")
	}

	m.mu.Lock()
	if m.formats == nil {
		m.formats = map[string]imaging.Format{}
	}
	m.formats[string(data)] = format
	m.mu.Unlock()

	_, err = dst.Write(append([]byte("marked:"), data...))
	return err
}

func validOptions() model.WatermarkOptions {
	return model.WatermarkOptions{
		Lines:    []string{"mark"},
		Ratio:    0.5,
		Anchor:   layout.Center,
		FontPath: "font.ttf",
	}
}

func newTree(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()

	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func TestProcessor_Run(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/in/a.png":            "a",
		"/in/b.JPG":            "b",
		"/in/notes.txt":        "skip me",
		"/in/sub/c.jpeg":       "c",
		"/in/sub/deep/d.gif":   "d",
		"/in/sub/broken.png":   "broken",
		"/in/empty/readme.md":  "nothing",
		"/in/out/ignored.png":  "old output",
		"/elsewhere/other.png": "x",
	})
	r := &mockRenderer{}
	p := NewProcessor(fs, r, 3, zerolog.Nop())

	report, err := p.Run(context.Background(), "/in", "/in/out", validOptions())
	require.NoError(t, err)
	require.Equal(t, 4, report.Processed)
	require.Zero(t, report.Skipped)
	require.Len(t, report.Failed, 1)
	require.Equal(t, filepath.Join("/in", "sub", "broken.png"), report.Failed[0].Path)
	require.ErrorContains(t, report.Err(), "broken.png")

	require.Equal(t, "marked:a", readFile(t, fs, "/in/out/a.png"))
	require.Equal(t, "marked:b", readFile(t, fs, "/in/out/b.JPG"))
	require.Equal(t, "marked:c", readFile(t, fs, "/in/out/sub/c.jpeg"))
	require.Equal(t, "marked:d", readFile(t, fs, "/in/out/sub/deep/d.gif"))
	require.Equal(t, "old output", readFile(t, fs, "/in/out/ignored.png"))

	require.Equal(t, imaging.PNG, r.formats["a"])
	require.Equal(t, imaging.JPEG, r.formats["b"])
	require.Equal(t, imaging.GIF, r.formats["d"])

	for _, name := range []string{"/in/out/notes.txt", "/in/out/sub/broken.png", "/in/out/empty"} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		require.False(t, exists, name)
	}
}

func TestProcessor_RunIsIdempotent(t *testing.T) {
	fs := newTree(t, map[string]string{"/in/sub/a.png": "a"})
	p := NewProcessor(fs, &mockRenderer{}, 1, zerolog.Nop())

	for range 2 {
		report, err := p.Run(context.Background(), "/in", "/out", validOptions())
		require.NoError(t, err)
		require.Equal(t, 1, report.Processed)
		require.NoError(t, report.Err())
	}
	require.Equal(t, "marked:a", readFile(t, fs, "/out/sub/a.png"))
}

func TestProcessor_RunCanceled(t *testing.T) {
	fs := newTree(t, map[string]string{"/in/a.png": "a", "/in/b.png": "b"})
	p := NewProcessor(fs, &mockRenderer{}, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, "/in", "/out", validOptions())
	require.NoError(t, err)
	require.Zero(t, report.Processed)
	require.Empty(t, report.Failed)

	exists, err := afero.Exists(fs, "/out/a.png")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestProcessor_RunErrors(t *testing.T) {
	fs := newTree(t, map[string]string{"/in/a.png": "a", "/file.png": "f"})
	p := NewProcessor(fs, &mockRenderer{}, 1, zerolog.Nop())
	ctx := context.Background()

	_, err := p.Run(ctx, "/missing", "/out", validOptions())
	require.Error(t, err)

	_, err = p.Run(ctx, "/file.png", "/out", validOptions())
	require.Error(t, err)

	_, err = p.Run(ctx, "/in", "/in/", validOptions())
	require.Error(t, err)

	bad := validOptions()
	bad.Ratio = 2
	_, err = p.Run(ctx, "/in", "/out", bad)
	require.ErrorIs(t, err, layout.ErrInvalidConfig)
}

func TestProcessor_RunFile(t *testing.T) {
	fs := newTree(t, map[string]string{"/in/a.png": "a", "/in/broken.png": "broken", "/outdir/.keep": ""})
	p := NewProcessor(fs, &mockRenderer{}, 1, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.RunFile(ctx, "/in/a.png", "/result/a.jpg", validOptions()))
	require.Equal(t, "marked:a", readFile(t, fs, "/result/a.jpg"))

	require.NoError(t, p.RunFile(ctx, "/in/a.png", "/outdir", validOptions()))
	require.Equal(t, "marked:a", readFile(t, fs, "/outdir/a.png"))

	err := p.RunFile(ctx, "/in/broken.png", "/result/broken.png", validOptions())
	require.Error(t, err)
	exists, _ := afero.Exists(fs, "/result/broken.png")
	require.False(t, exists)

	err = p.RunFile(ctx, "/in/a.png", "/result/a.txt", validOptions())
	require.ErrorIs(t, err, imaging.ErrUnsupportedFormat)

	err = p.RunFile(ctx, "/in/missing.png", "/result/m.png", validOptions())
	require.Error(t, err)
}

func TestReport_Err(t *testing.T) {
	require.NoError(t, Report{Processed: 3}.Err())

	r := Report{Failed: []Failure{
		{Path: "b.png", Err: errors.New("two")},
		{Path: "a.png", Err: layout.ErrInvalidWatermark},
	}}
	err := r.Err()
	require.ErrorIs(t, err, layout.ErrInvalidWatermark)

	lines := strings.Split(err.Error(), "\n")
	sort.Strings(lines)
	require.Equal(t, []string{"a.png: " + layout.ErrInvalidWatermark.Error(), "b.png: two"}, lines)
}
