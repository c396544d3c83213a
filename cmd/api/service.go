package main

import (
	"context"

	"github.com/UnendingLoop/TextWatermark/internal/transport"
)

// JobAPIService - все, что api-процессу нужно от сервиса: ручки плюс подбор подвисших задач
type JobAPIService interface {
	transport.JobService
	ReviveOrphans(ctx context.Context, limit int)
}
