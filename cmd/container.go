package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	"github.com/keyward-io/keyward/pkg/config"
	"github.com/keyward-io/keyward/pkg/iam/iamcontainer"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/notify"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds the application-level dependencies: storage, cache, mail
// and the authentication module built on top of them.
type Container struct {
	Cfg   *config.Config
	DB    *sqlx.DB
	Redis *redis.Client

	IAM *iamcontainer.Container
}

func NewContainer() (*Container, error) {
	cfg := config.Load()

	db, err := connectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	logx.Info("database connected")

	rdb := connectRedis(&cfg.Redis)

	mailer := notify.NewClient(newEmailProvider(&cfg.Email))

	iamc, err := iamcontainer.New(iamcontainer.Deps{
		DB:     db,
		Redis:  rdb,
		Mailer: mailer,
		Cfg:    cfg,
	})
	if err != nil {
		return nil, err
	}

	return &Container{Cfg: cfg, DB: db, Redis: rdb, IAM: iamc}, nil
}

func (c *Container) Cleanup() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.WithError(err).Error("failed to close database")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.WithError(err).Error("failed to close redis")
		}
	}
}

func connectDB(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// connectRedis returns nil when Redis is unreachable; the IAM container then
// falls back to in-process limiting, which is only safe for one node.
func connectRedis(cfg *config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logx.WithError(err).Warn("redis unreachable, continuing without it")
		return nil
	}
	logx.Info("redis connected")
	return rdb
}

func newEmailProvider(cfg *config.EmailConfig) notify.EmailSender {
	if cfg.Provider == "ses" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logx.WithError(err).Warn("aws config failed, falling back to console email")
			return notify.NewConsoleProvider()
		}
		logx.Info("ses email provider enabled")
		return notify.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.FromAddress)
	}
	return notify.NewConsoleProvider()
}
