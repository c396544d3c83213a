// Package main (in api-subfolder) provides launch of the HTTP part of the watermark service
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/UnendingLoop/TextWatermark/internal/kafka"
	"github.com/UnendingLoop/TextWatermark/internal/mwlogger"
	"github.com/UnendingLoop/TextWatermark/internal/repository"
	"github.com/UnendingLoop/TextWatermark/internal/service"
	"github.com/UnendingLoop/TextWatermark/internal/storage"
	"github.com/UnendingLoop/TextWatermark/internal/transport"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

const (
	defaultUploadRPS   = 2.0
	defaultUploadBurst = 5
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	level := appConfig.GetString("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	if err := zlog.SetLevel(level); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключиться к базе и накатить миграцию
	dbConn := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second)
	repo := repository.NewPostgresJobRepo(dbConn)

	// подключиться к хранилищу
	strg, err := storage.NewImgStorage(ctx, appConfig, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect IMG-storage: %v", err)
	}

	// ждем пока кафка раздуплится и подключаемся как продюсер
	broker := appConfig.GetString("KAFKA_BROKER")
	topic := appConfig.GetString("KAFKA_TOPIC")
	if err := kafka.WaitKafkaReady(ctx, broker, 10*time.Second); err != nil {
		log.Fatalf("Kafka is unavailable: %v", err)
	}
	if err := kafka.InitKafkaTopics(ctx, broker, 10*time.Second, topic); err != nil {
		log.Fatalf("Failed to init Kafka topics: %v", err)
	}
	pub := wbfkafka.NewProducer([]string{broker}, topic)

	// создаем экземпляр сервиса
	var svc JobAPIService = service.NewJobService(repo, pub, strg, appConfig.GetString("SOURCE_KEY"), appConfig.GetString("RESULT_KEY"))
	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewJobHandler(svc)
	limiter := transport.NewRateLimiter(uploadRPS(appConfig), uploadBurst(appConfig))
	go limiter.Cleanup(ctx)

	// сетапим сервер
	engine := ginext.New(appConfig.GetString("GIN_MODE"))

	engine.GET("/ping", handlers.SimplePinger)
	engine.POST("/watermarks", limiter.Middleware, handlers.Create) // создание задачи
	engine.GET("/watermarks/:id", handlers.LoadResult)              // загрузка результата
	engine.GET("/watermarks/:id/status", handlers.GetStatus)        // статус задачи
	engine.GET("/watermarks", handlers.GetAllJobs)                  // список задач с пагинацией и сортировкой
	engine.DELETE("/watermarks/:id", handlers.Delete)               // удаление

	srv := &http.Server{
		Addr:              ":" + appConfig.GetString("APP_PORT"),
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server launch
	go func() {
		zlog.Logger.Info().Str("addr", srv.Addr).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()

	// запускаем фонового воркера для отслеживания подвисших задач
	go recoveryLoop(ctx, svc)

	// ждем отмены контекста для запуска грейсфул закрытия соединений бд и кафки
	<-ctx.Done()

	shutdown(srv, pub, dbConn)
	zlog.Logger.Info().Msg("Exiting api...")
}

func uploadRPS(cfg *config.Config) float64 {
	rps, err := strconv.ParseFloat(cfg.GetString("UPLOAD_RPS"), 64)
	if err != nil || rps <= 0 {
		return defaultUploadRPS
	}
	return rps
}

func uploadBurst(cfg *config.Config) int {
	if b, err := strconv.Atoi(cfg.GetString("UPLOAD_BURST")); err == nil && b > 0 {
		return b
	}
	return defaultUploadBurst
}

func recoveryLoop(ctx context.Context, svc JobAPIService) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("Recovery loop crashed")
		}
	}()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ReviveOrphans(ctx, 20)
		}
	}
}

func shutdown(srv *http.Server, pub *wbfkafka.Producer, dbConn *dbpg.DB) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to shutdown HTTP-server gracefully")
	}

	// Closing Kafka connection:
	if err := pub.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close Kafka-writer")
	}
	zlog.Logger.Info().Msg("Kafka-producer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("Failed to close DB-conn correctly")
		return
	}
	zlog.Logger.Info().Msg("DBconn closed")
}
