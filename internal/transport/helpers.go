package transport

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/mwlogger"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrResultNotReady):
		return 404
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrEmptyText),
		errors.Is(err, model.ErrIncorrectStatus),
		errors.Is(err, model.ErrUnsupportedFormat),
		errors.Is(err, layout.ErrInvalidWatermark),
		errors.Is(err, layout.ErrInvalidAnchor),
		errors.Is(err, layout.ErrInvalidConfig),
		errors.Is(err, layout.ErrBlockOverflow):
		return 400
	default:
		return 500
	}
}

// detectContentType доверяет заголовку части формы, только если он из списка картинок,
// иначе определяет тип по первым байтам и перематывает файл в начало
func detectContentType(f io.ReadSeeker, declared string) (string, error) {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && model.InImageTypeMap[mt] {
		return mt, nil
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	mt, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return mt, nil
}

func closeFileFlow(ctx context.Context, res io.Closer) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Handler failed to close fileflow")
	}
}
