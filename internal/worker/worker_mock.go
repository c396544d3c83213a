package worker

import (
	"context"
	"io"

	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/disintegration/imaging"
	kafkago "github.com/segmentio/kafka-go"
)

type mockWorkerService struct {
	getFn         func(ctx context.Context, id string) (*model.Job, error)
	updateFn      func(ctx context.Context, id string, st model.Status) error
	markFailedFn  func(ctx context.Context, id string, reason error) error
	loadSourceFn  func(ctx context.Context, job *model.Job) (io.ReadCloser, string, error)
	storeResultFn func(ctx context.Context, job *model.Job, r io.Reader, size int64, ctype string) error
}

func (m *mockWorkerService) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockWorkerService) UpdateStatus(ctx context.Context, id string, st model.Status) error {
	return m.updateFn(ctx, id, st)
}

func (m *mockWorkerService) MarkFailed(ctx context.Context, id string, reason error) error {
	return m.markFailedFn(ctx, id, reason)
}

func (m *mockWorkerService) LoadSource(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
	return m.loadSourceFn(ctx, job)
}

func (m *mockWorkerService) StoreResult(ctx context.Context, job *model.Job, r io.Reader, size int64, ctype string) error {
	return m.storeResultFn(ctx, job, r, size, ctype)
}

//----------------------------------

type mockRenderer struct {
	fn func(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error)
}

func (m *mockRenderer) Watermarker(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error) {
	return m.fn(b, opts, format)
}

//----------------------------------

type mockCommitter struct {
	committed []string
	err       error
}

func (m *mockCommitter) Commit(ctx context.Context, msg kafkago.Message) error {
	m.committed = append(m.committed, string(msg.Key))
	return m.err
}
