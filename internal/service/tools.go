package service

import (
	"strings"

	"github.com/UnendingLoop/TextWatermark/internal/model"
)

func validateQueryParams(req *model.ListRequest) {
	// Обрабатываем пустые значения, присваиваем дефолты если надо
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 30
	}

	// Sort и Order подставляются в SQL, поэтому только из белого списка
	req.Sort = strings.TrimSpace(strings.ToLower(req.Sort))
	switch {
	case strings.Contains(req.Sort, model.ByUUID):
		req.Sort = "job_uid"
	default:
		req.Sort = "created_at" // по дефолту ставим сортировку по времени создания
	}

	req.Order = strings.TrimSpace(strings.ToLower(req.Order))
	switch {
	case strings.Contains(req.Order, model.OrderASC):
		req.Order = "ASC"
	default:
		req.Order = "DESC" // по дефолту ставим сортировку "новое-выше"
	}
}

// validateNormalizeJobData проверяет исходник и параметры отрисовки,
// возвращает задачу с нормализованными параметрами
func validateNormalizeJobData(raw *model.JobCreateData) (*model.Job, error) {
	if raw == nil || raw.OrigImg == nil || raw.OrigImgSize <= 0 {
		return nil, model.ErrEmptySource
	}
	if !model.InImageTypeMap[raw.OrigContentType] {
		return nil, model.ErrUnsupportedFormat
	}

	// хотя бы одна непустая строка; пустые строки в середине допустимы как отступ
	blank := true
	for _, l := range raw.Lines {
		if strings.TrimSpace(l) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, model.ErrEmptyText
	}

	opts, err := model.ParseOptions(model.RawOptions{
		Lines:  raw.Lines,
		Ratio:  raw.Ratio,
		Color:  raw.Color,
		Alpha:  raw.Alpha,
		Anchor: raw.Anchor,
	})
	if err != nil {
		return nil, err
	}

	return &model.Job{
		Lines:  opts.Lines,
		Ratio:  opts.Ratio,
		Color:  model.FormatHexColor(opts.Color),
		Anchor: opts.Anchor.String(),
	}, nil
}
