package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	sqlmysql "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// .env is optional; deployed instances use real env vars
	godotenv.Load()
}

// databaseDSN builds the MySQL DSN from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT
// and DB_NAME. A DB_HOST of /cloudsql/<instance> connects over the unix socket.
func databaseDSN() string {
	cfg := sqlmysql.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.ParseTime = true
	cfg.MultiStatements = true

	host := os.Getenv("DB_HOST")
	if strings.HasPrefix(host, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = host
	} else {
		cfg.Net = "tcp"
		cfg.Addr = host + ":" + os.Getenv("DB_PORT")
	}
	return cfg.FormatDSN()
}

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func poolSettingsFromEnv() poolSettings {
	return poolSettings{
		maxOpen:     intFromEnv("DB_MAX_OPEN_CONNS", 50),
		maxIdle:     intFromEnv("DB_MAX_IDLE_CONNS", 25),
		maxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		maxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
	}
}

func (p poolSettings) apply(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if p.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(p.maxOpen)
	}
	if p.maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(p.maxIdle)
	}
	if p.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.maxLifetime)
	}
	if p.maxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.maxIdleTime)
	}
	return nil
}

// ConnectDatabaseWithRetry connects and sets the global DB. It blocks until
// MySQL answers, so main calls it after the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	dsn := databaseDSN()
	pool := poolSettingsFromEnv()
	fields := logrus.Fields{"field": "database", "host": os.Getenv("DB_HOST"), "db": os.Getenv("DB_NAME")}

	_ = retry(context.Background(), "database", fields, func(ctx context.Context) error {
		conn, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err != nil {
			return err
		}
		if err := pool.apply(conn); err != nil {
			return err
		}
		if err := conn.Use(otelgorm.NewPlugin()); err != nil {
			logg.WithFields(fields).Warn("otelgorm plugin not installed: " + err.Error())
		}
		db = conn
		return nil
	})
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: schema.NamingStrategy{},
	}
}

// initLog logs SQL at info level when GORM_LOG is set, errors otherwise.
func initLog() logger.Interface {
	level := logger.Error
	if os.Getenv("GORM_LOG") != "" {
		level = logger.Info
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel:                  level,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}
