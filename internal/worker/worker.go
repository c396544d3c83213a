// Package worker consumes watermark jobs from the queue and renders them
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/mwlogger"
	"github.com/disintegration/imaging"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

type JobWorkerService interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	UpdateStatus(ctx context.Context, id string, newStat model.Status) error
	MarkFailed(ctx context.Context, id string, reason error) error
	LoadSource(ctx context.Context, job *model.Job) (io.ReadCloser, string, error)
	StoreResult(ctx context.Context, job *model.Job, r io.Reader, size int64, ctype string) error
}

// Renderer накладывает водяной знак на закодированную картинку
type Renderer interface {
	Watermarker(b io.Reader, opts model.WatermarkOptions, format imaging.Format) (io.Reader, int64, error)
}

// Committer подтверждает обработку сообщения очереди
type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

// Config - параметры отрисовки, общие для всех задач воркера
type Config struct {
	FontPath string
	Strict   bool
	Quality  int
}

type Worker struct {
	service  JobWorkerService
	renderer Renderer
	queue    <-chan kafkago.Message
	consumer Committer
	cfg      Config
}

func NewWorkerInstance(svc JobWorkerService, r Renderer, q <-chan kafkago.Message, cons Committer, cfg Config) *Worker {
	return &Worker{service: svc, renderer: r, queue: q, consumer: cons, cfg: cfg}
}

func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				zlog.Logger.Info().Msg("Queue channel closed, stopping worker...")
				return
			}
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg kafkago.Message) {
	id := string(msg.Key)
	logger := zlog.Logger.With().Str("job_uid", id).Logger()
	ctx = mwlogger.WithLogger(ctx, logger)

	if err := w.initProcessor(ctx, id); err != nil {
		// сбой инфраструктуры - сообщение не коммитим, задачу потом подберет ReviveOrphans
		logger.Error().Err(err).Msg("Task failed")
		return
	}
	if err := w.consumer.Commit(ctx, msg); err != nil {
		logger.Error().Err(err).Msg("Failed to commit queue-message")
	}
}

// initProcessor возвращает ошибку только когда задачу надо повторить (сбой базы или хранилища);
// ошибки отрисовки фиксируются в задаче как failed
func (w *Worker) initProcessor(ctx context.Context, id string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	// считать из базы задачу
	task, err := w.service.Get(ctx, id)
	switch {
	case errors.Is(err, model.ErrJobNotFound), errors.Is(err, model.ErrIncorrectID):
		logger.Warn().Err(err).Msg("Skipping message for unknown job")
		return nil
	case err != nil:
		return fmt.Errorf("worker failed to fetch job %q from DB: %w", id, err)
	}

	// проверить статус; in_progress повторяем - так сюда попадают подвисшие задачи
	switch task.Status {
	case model.StatusDone, model.StatusFailed:
		return nil
	}

	if err := w.service.UpdateStatus(ctx, id, model.StatusInProgress); err != nil {
		return fmt.Errorf("failed to update status of task %q to `in_progress` in DB: %w", id, err)
	}

	// выполняем саму операцию
	if pErr := w.processTask(ctx, task); pErr != nil {
		// хранилище или база недоступны - задача не испорчена, повторяем
		if errors.Is(pErr, model.ErrCommon500) {
			return fmt.Errorf("task %q interrupted by infrastructure error: %w", id, pErr)
		}
		logger.Warn().Err(pErr).Msg("Watermarking failed")
		if fErr := w.service.MarkFailed(ctx, id, pErr); fErr != nil {
			return fmt.Errorf("failed to set status of task %q to `failed` in DB: %w; after processing error: %w", id, fErr, pErr)
		}
		return nil
	}

	logger.Info().Msg("Task done")
	return nil
}

func (w *Worker) processTask(ctx context.Context, task *model.Job) error {
	opts, err := model.ParseOptions(task.RawOptions())
	if err != nil {
		return fmt.Errorf("stored watermark options are invalid: %w", err)
	}
	opts.FontPath = w.cfg.FontPath
	opts.Strict = w.cfg.Strict
	opts.Quality = w.cfg.Quality

	// достать из storage исходник
	base, _, err := w.service.LoadSource(ctx, task)
	if err != nil {
		return fmt.Errorf("worker failed to fetch base-image from storage: %w", err)
	}

	// определить формат выходного файла по содержимому исходника
	pBase, format, err := validateImgFormat(base)
	if err != nil {
		return fmt.Errorf("worker failed to validate base-image format: %w", err)
	}

	result, size, err := w.renderer.Watermarker(pBase, opts, format)
	if err != nil {
		return fmt.Errorf("worker failed to apply watermark: %w", err)
	}

	// положить результат в сторедж и обновить запись в БД
	if err := w.service.StoreResult(ctx, task, result, size, model.GetCType[format]); err != nil {
		return fmt.Errorf("worker failed to save result: %w", err)
	}
	return nil
}

func validateImgFormat(r io.ReadCloser) (io.Reader, imaging.Format, error) {
	if r == nil {
		return nil, -1, errors.New("nil-reader provided")
	}
	defer closeFileFlow(r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, -1, err
	}

	_, f, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %w", model.ErrUnsupportedFormat, err)
	}

	format, err := imaging.FormatFromExtension(f)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %w", model.ErrUnsupportedFormat, err)
	}

	return bytes.NewReader(data), format, nil
}

func closeFileFlow(res io.Closer) {
	if err := res.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Worker failed to close fileflow")
	}
}
