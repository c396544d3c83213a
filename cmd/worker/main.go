// Package main (in worker-subfolder) provides launch of the queue worker that renders watermarks
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/UnendingLoop/TextWatermark/internal/imageproc"
	"github.com/UnendingLoop/TextWatermark/internal/kafka"
	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/repository"
	"github.com/UnendingLoop/TextWatermark/internal/service"
	"github.com/UnendingLoop/TextWatermark/internal/storage"
	"github.com/UnendingLoop/TextWatermark/internal/textdraw"
	"github.com/UnendingLoop/TextWatermark/internal/worker"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	zlog.InitConsole()
	level := appConfig.GetString("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	if err := zlog.SetLevel(level); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// шрифт обязателен - без него воркеру нечего делать
	fontPath := appConfig.GetString("FONT_PATH")
	if _, err := os.Stat(fontPath); err != nil {
		log.Fatalf("FONT_PATH %q is not readable: %v", fontPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключиться к базе
	dbConn := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	repo := repository.NewPostgresJobRepo(dbConn)
	// подключиться к хранилищу
	strg, err := storage.NewImgStorage(ctx, appConfig, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect IMG-storage: %v", err)
	}
	// создаем экземпляр сервиса; публиковать воркеру нечего
	svc := service.NewJobService(repo, NoopPublisher{}, strg, appConfig.GetString("SOURCE_KEY"), appConfig.GetString("RESULT_KEY"))

	// ждем пока кафка раздуплится и подключаемся как читатель
	broker := appConfig.GetString("KAFKA_BROKER")
	if err := kafka.WaitKafkaReady(ctx, broker, 10*time.Second); err != nil {
		log.Fatalf("Kafka is unavailable: %v", err)
	}
	queue := make(chan kafkago.Message)
	retryStrategy := retry.Strategy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Backoff:  1.5,
	}
	cons := wbfkafka.NewConsumer([]string{broker}, appConfig.GetString("KAFKA_TOPIC"), appConfig.GetString("KAFKA_GROUPID"))
	cons.StartConsuming(ctx, queue, retryStrategy)

	// Собираем воедино все что нужно воркеру и запускаем его
	renderer := imageproc.NewRenderer(textdraw.NewLoader())
	wrk := worker.NewWorkerInstance(svc, renderer, queue, cons, worker.Config{
		FontPath: fontPath,
		Strict:   strict(appConfig),
		Quality:  quality(appConfig),
	})
	go wrk.StartWorker(ctx)

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()

	shutdown(cons, dbConn)
	zlog.Logger.Info().Msg("Exiting worker...")
}

func quality(cfg *config.Config) int {
	if q, err := strconv.Atoi(cfg.GetString("WM_QUALITY")); err == nil && q > 0 && q <= 100 {
		return q
	}
	return model.DefaultQuality
}

func strict(cfg *config.Config) bool {
	s, _ := strconv.ParseBool(cfg.GetString("WM_STRICT"))
	return s
}

func shutdown(cons *wbfkafka.Consumer, dbConn *dbpg.DB) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	// Closing Kafka connection:
	if err := cons.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka-reader")
	}
	zlog.Logger.Info().Msg("Kafka-consumer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close DB-conn correctly")
		return
	}
	zlog.Logger.Info().Msg("DBconn closed")
}
