package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"microlending/config"
	"microlending/controllers"
	"microlending/database"
	"microlending/services"
	"microlending/utils"
)

// newLocker возвращает распределенную блокировку в Redis или локальную, если адрес не задан
func newLocker(ctx context.Context, cfg *config.Config) (utils.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		utils.LogInfo("REDIS_ADDR не задан, используются блокировки внутри процесса")
		return utils.NewLocalLocker(), func() {}, nil
	}

	client, err := utils.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return utils.NewRedisLocker(client, cfg.Redis.LockTTL), func() { client.Close() }, nil
}

// loadCatalog читает каталог предложений, при ошибке используется встроенный
func loadCatalog(path string) *services.OfferCatalog {
	if path == "" {
		return services.DefaultOfferCatalog()
	}
	catalog, err := services.LoadOfferCatalog(path)
	if err != nil {
		utils.LogError("Каталог предложений не загружен, используется встроенный: %v", err)
		return services.DefaultOfferCatalog()
	}
	return catalog
}

// newPublishers создает каналы доставки событий по конфигурации
func newPublishers(cfg *config.Config) ([]services.Publisher, func(), error) {
	var publishers []services.Publisher
	closers := []func(){}

	if cfg.SMTP.Host != "" {
		publishers = append(publishers, services.NewEmailService(cfg))
	}

	if cfg.Kafka.Brokers != "" {
		kafka, err := services.NewKafkaPublisher(cfg)
		if err != nil {
			return nil, nil, err
		}
		publishers = append(publishers, kafka)
		closers = append(closers, kafka.Close)
	}

	return publishers, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	utils.SetLogLevel(cfg.LogLevel)
	defer utils.Logger().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализируем подключение к базе данных
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации блокировок: %v", err)
	}
	defer closeLocker()

	publishers, closePublishers, err := newPublishers(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации публикации событий: %v", err)
	}
	defer closePublishers()

	pool := utils.NewWorkerPool(cfg.Workers, 1000)
	defer pool.Stop()

	metrics := utils.GetMetrics()
	catalog := loadCatalog(cfg.CatalogPath)
	events := services.NewDispatcher(pool, publishers...)

	apps := services.NewApplicationService(db.DB, catalog, locker, events, metrics)
	loans := services.NewLoanService(db.DB, apps)
	ledger := services.NewPaymentLedger(db.DB, locker, events, metrics)
	borrowers := services.NewBorrowerService(db.DB)

	// Запускаем поиск просроченных взносов
	services.NewOverdueScheduler(db.DB, events, metrics, cfg.OverdueScanInterval).Start(ctx)
	utils.LogInfo("Планировщик просроченных взносов запущен")

	router := controllers.NewRouter(controllers.RouterDeps{
		Apps:      apps,
		Loans:     loans,
		Ledger:    ledger,
		Borrowers: borrowers,
		Catalog:   catalog,
		Metrics:   metrics,
		Limiter:   utils.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow),
		JWTKey:    []byte(cfg.JWT.SecretKey),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			utils.LogError("Ошибка остановки сервера: %v", err)
		}
	}()

	// Запускаем сервер
	utils.LogInfo("Сервер запущен на порту %d", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
	utils.LogInfo("Сервер остановлен")
}
