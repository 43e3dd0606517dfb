package bootstrap

import (
	"context"
	"fmt"
	"time"

	milvussdk "github.com/milvus-io/milvus-sdk-go/v2/client"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"evalrag/internal/config"
	"evalrag/internal/embedding"
	"evalrag/internal/model"
	milvusClient "evalrag/internal/platform/milvus"
	mysqlClient "evalrag/internal/platform/mysql"
	rabbitmqClient "evalrag/internal/platform/rabbitmq"
	redisClient "evalrag/internal/platform/redis"
	"evalrag/internal/repository"
	"evalrag/internal/settings"
	"evalrag/internal/vectorstore"
	"evalrag/internal/vectorstore/memory"
	milvusStore "evalrag/internal/vectorstore/milvus"
	"evalrag/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Milvus      milvussdk.Client
	VectorStore vectorstore.Store
	Embedding   *embedding.Provider
	Settings    *settings.Store
	Publisher   *rabbitmqClient.EventPublisher
	IngestRepo  *repository.IngestLogRepository
	IngestLog   *worker.IngestLogWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.IngestEvent{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		MySQL:     mysqlDB,
		Redis:     redisCli,
		MQConn:    mqConn,
		Settings:  settings.NewStore(redisCli),
		Publisher: rabbitmqClient.NewEventPublisher(mqConn, cfg.RabbitMQ.IngestLogQueue),
		StartedAt: time.Now(),
	}

	app.Embedding = embedding.NewProvider(embedding.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})

	if err := app.initVectorStore(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.IngestRepo = repository.NewIngestLogRepository(mysqlDB)
	app.IngestLog = worker.NewIngestLogWorker(mqConn, app.IngestRepo, cfg.RabbitMQ.IngestLogQueue)
	if err := app.IngestLog.Start(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("start ingest log worker failed: %w", err)
	}

	return app, nil
}

func (a *App) initVectorStore(ctx context.Context) error {
	switch a.Config.VectorStore.Driver {
	case "memory":
		a.VectorStore = memory.New()
		return nil
	case "milvus", "":
		mc, err := milvusClient.New(a.Config.Milvus.Addr)
		if err != nil {
			return err
		}
		a.Milvus = mc

		store, err := milvusStore.New(ctx, mc, a.Config.Milvus.Collection, a.Config.Embedding.Dimension)
		if err != nil {
			return err
		}
		a.VectorStore = store
		return nil
	default:
		return fmt.Errorf("unknown vector store driver %q", a.Config.VectorStore.Driver)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestLog != nil {
		a.IngestLog.Close()
	}
	if a.Milvus != nil {
		if err := a.Milvus.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
