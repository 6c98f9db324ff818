// Package main - точка входа сервиса.
// Загружает конфигурацию, собирает приложение и запускает бота, HTTP API
// и планировщик. Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/gifts-bot/internal/app"
	"serotonyl.ru/gifts-bot/internal/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	setupLogging()

	log.Info("=== Сервис запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	// Контекст отменяется по SIGINT/SIGTERM (Ctrl+C, docker stop)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.DB.Close()

	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		application.Bot.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := application.API.Start(); err != nil {
			log.WithError(err).Error("HTTP API остановлен с ошибкой")
			stop()
		}
	}()

	log.Info("=== Сервис готов к работе ===")

	<-ctx.Done()
	log.Info("Получен сигнал остановки, завершаемся...")

	// Открытия кейсов, начатые до сигнала, должны успеть записаться или вернуть средства
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.API.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP API не остановился вовремя")
	}
	application.Scheduler.Stop()
	wg.Wait()

	log.Info("=== Сервис остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
