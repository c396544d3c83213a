package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UnendingLoop/TextWatermark/internal/imageproc"
	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/textdraw"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func newJob(status model.Status) *model.Job {
	return &model.Job{
		UID:       uuid.New(),
		SourceKey: "src/1.png",
		Lines:     model.StringSlice{"© Studio", "2024"},
		Ratio:     0.5,
		Color:     "#FF000080",
		Anchor:    "bottom-right",
		Status:    status,
	}
}

func encoded(t *testing.T, format imaging.Format) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 200, 120))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func sourceOf(data []byte) func(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
	return func(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
		return io.NopCloser(bytes.NewReader(data)), "", nil
	}
}

func TestWorker_initProcessor(t *testing.T) {
	ctx := context.Background()
	id := uuid.New().String()

	tests := []struct {
		name        string
		job         *model.Job
		getErr      error
		updateErr   error
		renderErr   error
		loadErr     error
		storeErr    error
		wantErr     bool
		wantFailed  bool
		wantStored  bool
		wantUpdated bool
	}{
		{
			name: "already done",
			job:  newJob(model.StatusDone),
		},
		{
			name: "already failed",
			job:  newJob(model.StatusFailed),
		},
		{
			name:   "job not found is dropped",
			getErr: model.ErrJobNotFound,
		},
		{
			name:    "db error is retried",
			getErr:  model.ErrCommon500,
			wantErr: true,
		},
		{
			name:        "update status error",
			job:         newJob(model.StatusCreated),
			updateErr:   errors.New("db down"),
			wantErr:     true,
			wantUpdated: true,
		},
		{
			name:        "stale in_progress is reprocessed",
			job:         newJob(model.StatusInProgress),
			wantStored:  true,
			wantUpdated: true,
		},
		{
			name:        "render error marks failed",
			job:         newJob(model.StatusCreated),
			renderErr:   layout.ErrBlockOverflow,
			wantFailed:  true,
			wantUpdated: true,
		},
		{
			name:        "storage read outage is retried",
			job:         newJob(model.StatusCreated),
			loadErr:     model.ErrCommon500,
			wantErr:     true,
			wantUpdated: true,
		},
		{
			name:        "storage write outage is retried",
			job:         newJob(model.StatusCreated),
			storeErr:    model.ErrCommon500,
			wantErr:     true,
			wantStored:  true,
			wantUpdated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var failed, stored, updated bool

			svc := &mockWorkerService{
				getFn: func(ctx context.Context, _ string) (*model.Job, error) {
					return tt.job, tt.getErr
				},
				updateFn: func(ctx context.Context, _ string, st model.Status) error {
					require.Equal(t, model.StatusInProgress, st)
					updated = true
					return tt.updateErr
				},
				markFailedFn: func(ctx context.Context, _ string, reason error) error {
					require.ErrorIs(t, reason, tt.renderErr)
					failed = true
					return nil
				},
				loadSourceFn: func(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
					if tt.loadErr != nil {
						return nil, "", tt.loadErr
					}
					return sourceOf(encoded(t, imaging.PNG))(ctx, job)
				},
				storeResultFn: func(ctx context.Context, job *model.Job, r io.Reader, size int64, ctype string) error {
					require.Equal(t, model.PNG, ctype)
					stored = true
					return tt.storeErr
				},
			}

			rnd := &mockRenderer{
				fn: func(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error) {
					if tt.renderErr != nil {
						return nil, 0, tt.renderErr
					}
					return bytes.NewReader([]byte("out")), 3, nil
				},
			}

			w := NewWorkerInstance(svc, rnd, nil, &mockCommitter{}, Config{FontPath: "font.ttf"})

			err := w.initProcessor(ctx, id)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantFailed, failed)
			require.Equal(t, tt.wantStored, stored)
			require.Equal(t, tt.wantUpdated, updated)
		})
	}
}

func TestWorker_processTask_PassesOptions(t *testing.T) {
	job := newJob(model.StatusInProgress)

	svc := &mockWorkerService{
		loadSourceFn: sourceOf(encoded(t, imaging.JPEG)),
		storeResultFn: func(ctx context.Context, j *model.Job, r io.Reader, size int64, ctype string) error {
			require.Equal(t, model.JPEG, ctype)
			require.Equal(t, int64(2), size)
			return nil
		},
	}
	rnd := &mockRenderer{
		fn: func(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error) {
			require.Equal(t, imaging.JPEG, format)
			require.Equal(t, []string{"© Studio", "2024"}, opts.Lines)
			require.Equal(t, layout.BottomRight, opts.Anchor)
			require.Equal(t, color.NRGBA{R: 255, A: 128}, opts.Color)
			require.Equal(t, "/fonts/a.ttf", opts.FontPath)
			require.True(t, opts.Strict)
			require.Equal(t, 80, opts.Quality)
			return bytes.NewReader([]byte("ok")), 2, nil
		},
	}

	w := NewWorkerInstance(svc, rnd, nil, nil, Config{FontPath: "/fonts/a.ttf", Strict: true, Quality: 80})
	require.NoError(t, w.processTask(context.Background(), job))
}

func TestWorker_processTask_Errors(t *testing.T) {
	rnd := &mockRenderer{
		fn: func(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error) {
			return bytes.NewReader(nil), 0, nil
		},
	}

	// исходник недоступен
	w := NewWorkerInstance(&mockWorkerService{
		loadSourceFn: func(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
			return nil, "", model.ErrCommon500
		},
	}, rnd, nil, nil, Config{})
	require.ErrorIs(t, w.processTask(context.Background(), newJob(model.StatusCreated)), model.ErrCommon500)

	// не картинка
	w = NewWorkerInstance(&mockWorkerService{loadSourceFn: sourceOf([]byte("not-an-image"))}, rnd, nil, nil, Config{})
	require.ErrorIs(t, w.processTask(context.Background(), newJob(model.StatusCreated)), model.ErrUnsupportedFormat)

	// в базе испорченный якорь
	bad := newJob(model.StatusCreated)
	bad.Anchor = "somewhere"
	require.ErrorIs(t, w.processTask(context.Background(), bad), layout.ErrInvalidAnchor)
}

func TestWorker_StartWorker(t *testing.T) {
	ok := uuid.New()
	broken := uuid.New()

	noStorage := uuid.New()

	svc := &mockWorkerService{
		getFn: func(ctx context.Context, id string) (*model.Job, error) {
			switch id {
			case broken.String():
				return nil, model.ErrCommon500
			case noStorage.String():
				return newJob(model.StatusCreated), nil
			}
			return newJob(model.StatusDone), nil
		},
		updateFn: func(ctx context.Context, id string, st model.Status) error { return nil },
		loadSourceFn: func(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
			return nil, "", model.ErrCommon500
		},
		markFailedFn: func(ctx context.Context, id string, reason error) error {
			t.Errorf("job %s must not be marked failed on storage outage", id)
			return nil
		},
	}

	queue := make(chan kafkago.Message, 3)
	queue <- kafkago.Message{Key: []byte(broken.String())}
	queue <- kafkago.Message{Key: []byte(noStorage.String())}
	queue <- kafkago.Message{Key: []byte(ok.String())}
	close(queue)

	cons := &mockCommitter{}
	w := NewWorkerInstance(svc, &mockRenderer{}, queue, cons, Config{})

	done := make(chan struct{})
	go func() {
		w.StartWorker(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after queue was closed")
	}

	// упавшая на инфраструктуре задача не коммитится
	require.Equal(t, []string{ok.String()}, cons.committed)
}

func TestWorker_EndToEndRender(t *testing.T) {
	fontPath := filepath.Join(t.TempDir(), "goregular.ttf")
	require.NoError(t, os.WriteFile(fontPath, goregular.TTF, 0o644))

	var result []byte
	svc := &mockWorkerService{
		loadSourceFn: sourceOf(encoded(t, imaging.PNG)),
		storeResultFn: func(ctx context.Context, job *model.Job, r io.Reader, size int64, ctype string) error {
			b, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, size, int64(len(b)))
			result = b
			return nil
		},
	}

	w := NewWorkerInstance(svc, imageproc.NewRenderer(textdraw.NewLoader()), nil, nil, Config{FontPath: fontPath})
	require.NoError(t, w.processTask(context.Background(), newJob(model.StatusCreated)))

	img, err := imaging.Decode(bytes.NewReader(result))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 120), img.Bounds())
}

func TestValidateImgFormat(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    imaging.Format
		wantErr bool
	}{
		{"png", encoded(t, imaging.PNG), imaging.PNG, false},
		{"jpeg", encoded(t, imaging.JPEG), imaging.JPEG, false},
		{"gif", encoded(t, imaging.GIF), imaging.GIF, false},
		{"invalid data", []byte("xxx"), 0, true},
		{"nil reader", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r io.ReadCloser
			if tt.data != nil {
				r = io.NopCloser(bytes.NewReader(tt.data))
			}

			_, f, err := validateImgFormat(r)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, f)
		})
	}
}
