// Package service provides business-logic for the watermark jobs
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/mwlogger"
	"github.com/UnendingLoop/TextWatermark/internal/repository"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type JobService struct {
	repo            repository.JobRepo
	publisher       TaskPublisher
	storage         ObjectStorage
	srcKeyPrefix    string
	resultKeyPrefix string
}

func NewJobService(jobRepo repository.JobRepo, pub TaskPublisher, strg ObjectStorage, srcPrefix, resultPrefix string) *JobService {
	return &JobService{
		repo:            jobRepo,
		publisher:       pub,
		storage:         strg,
		srcKeyPrefix:    srcPrefix,
		resultKeyPrefix: resultPrefix,
	}
}

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ObjectStorage - контракт для работы с хранилищем
type ObjectStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// Стратегия ретрая отправки в очередь
var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}

// ResultKey - ключ результата в хранилище для задачи с исходником в формате ctype
func (c JobService) ResultKey(uid string, ctype string) string {
	return c.resultKeyPrefix + uid + model.GetImageFileExt[ctype]
}

func (c JobService) Create(ctx context.Context, jobData *model.JobCreateData) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	// Валидируем входные данные и параметры отрисовки
	newJob, err := validateNormalizeJobData(jobData)
	if err != nil {
		return nil, err
	}

	newJob.UID = uuid.New()

	// кладем в хранилище сорсник
	newJob.SourceKey = c.srcKeyPrefix + newJob.UID.String() + model.GetImageFileExt[jobData.OrigContentType]
	if err := c.storage.Put(ctx, newJob.SourceKey, jobData.OrigImgSize, jobData.OrigContentType, jobData.OrigImg); err != nil {
		logger.Error().Err(err).Msg("Failed to save src-image in Storage")
		return nil, model.ErrCommon500
	}

	// ставим статус и таймстамп
	newJob.Status = model.StatusCreated
	now := time.Now().UTC()
	newJob.CreatedAt = &now
	newJob.UpdatedAt = &now

	// шлем в базу
	if err := c.repo.Create(ctx, newJob); err != nil {
		logger.Error().Err(err).Msg("Failed to create job in DB")
		if err := c.storage.Delete(ctx, newJob.SourceKey); err != nil {
			logger.Warn().Err(err).Str("key", newJob.SourceKey).Msg("Failed to clean up src-image after DB error")
		}
		return nil, model.ErrCommon500
	}

	// кладем в очередь задач(в кафку); при неудаче задача уже в базе и ее подберет ReviveOrphans,
	// поэтому клиент все равно получает id
	if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(newJob.UID.String()), nil); err != nil {
		logger.Warn().Err(err).Str("uid", newJob.UID.String()).Msg("Failed to publish job to task-queue, left for orphan revival")
	}
	return newJob, nil
}

func (c JobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	validateQueryParams(req)

	res, err := c.repo.GetList(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch jobs list from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

func (c JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, model.ErrIncorrectID
	}

	res, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, c.repoError(ctx, err, fmt.Sprintf("Failed to fetch job %q from DB", id))
	}

	return res, nil
}

func (c JobService) LoadResult(ctx context.Context, id string) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	res, err := c.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if res.Status != model.StatusDone {
		return nil, "", model.ErrResultNotReady
	}

	// достаем из хранилища
	data, cType, err := c.storage.Get(ctx, res.ResultKey)
	if err != nil {
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch result-image %q from Storage", id))
		return nil, "", model.ErrCommon500
	}
	return data, cType, nil
}

// LoadSource отдает исходник задачи - используется воркером
func (c JobService) LoadSource(ctx context.Context, job *model.Job) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	data, cType, err := c.storage.Get(ctx, job.SourceKey)
	if err != nil {
		logger.Error().Err(err).Str("key", job.SourceKey).Msg("Failed to fetch src-image from Storage")
		return nil, "", model.ErrCommon500
	}
	return data, cType, nil
}

// StoreResult кладет готовую картинку в хранилище и отмечает задачу выполненной
func (c JobService) StoreResult(ctx context.Context, job *model.Job, r io.Reader, size int64, ctype string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	key := c.ResultKey(job.UID.String(), ctype)
	if err := c.storage.Put(ctx, key, size, ctype, r); err != nil {
		logger.Error().Err(err).Msg("Failed to save result-image in Storage")
		return model.ErrCommon500
	}

	job.ResultKey = key
	job.Status = model.StatusDone
	return c.SaveResult(ctx, job)
}

func (c JobService) Delete(ctx context.Context, id string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	// читаем из базы
	res, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	// удаляем из базы
	if err := c.repo.Delete(ctx, id); err != nil {
		return c.repoError(ctx, err, "Failed to delete job from DB")
	}

	// удаляем из хранилища сорсник и результат(если он есть)
	if err := c.storage.Delete(ctx, res.SourceKey); err != nil {
		logger.Error().Err(err).Msg("Failed to delete src-image from Storage")
		return model.ErrCommon500
	}
	if res.ResultKey != "" {
		if err := c.storage.Delete(ctx, res.ResultKey); err != nil {
			logger.Error().Err(err).Msg("Failed to delete result-image from Storage")
			return model.ErrCommon500
		}
	}

	return nil
}

func (c JobService) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	if err := uuid.Validate(id); err != nil {
		return model.ErrIncorrectID
	}
	if !model.StatusMap[newStat] {
		return model.ErrIncorrectStatus
	}

	if err := c.repo.UpdateStatus(ctx, id, newStat); err != nil {
		return c.repoError(ctx, err, "Failed to update job status in DB")
	}

	return nil
}

// MarkFailed переводит задачу в failed с сохранением причины
func (c JobService) MarkFailed(ctx context.Context, id string, reason error) error {
	if err := uuid.Validate(id); err != nil {
		return model.ErrIncorrectID
	}

	if err := c.repo.MarkFailed(ctx, id, reason.Error()); err != nil {
		return c.repoError(ctx, err, "Failed to mark job as failed in DB")
	}

	return nil
}

func (c JobService) SaveResult(ctx context.Context, input *model.Job) error {
	t := time.Now().UTC()
	input.UpdatedAt = &t
	if err := c.repo.SaveResult(ctx, input); err != nil {
		return c.repoError(ctx, err, "Failed to save result in DB")
	}

	return nil
}

func (c JobService) ReviveOrphans(ctx context.Context, limit int) {
	logger := mwlogger.LoggerFromContext(ctx)

	orphans, err := c.repo.FetchOrphans(ctx, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load orphans from DB")
		return
	}

	for _, v := range orphans {
		if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(v), nil); err != nil {
			logger.Error().Err(err).Str("uid", v).Msg("Failed to publish orphan to queue")
		}
	}
	if len(orphans) > 0 {
		logger.Info().Int("count", len(orphans)).Msg("Orphan jobs republished")
	}
}

// repoError пропускает 404 как есть, остальное логирует и прячет за 500
func (c JobService) repoError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, model.ErrJobNotFound) {
		return model.ErrJobNotFound // 404
	}
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Error().Err(err).Msg(msg)
	return model.ErrCommon500 // 500
}
