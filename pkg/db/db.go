package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"packwire/pkg/model"
)

// Init opens the account database and runs migrations. SQLite in the
// data directory is the default so a modpack host needs no external
// services; setting MYSQL_DSN or MYSQL_HOST switches to MySQL.
// Env:
//
//	MYSQL_DSN or MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASS, MYSQL_DB
func Init(dataDir string) (*gorm.DB, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	var err error
	if os.Getenv("MYSQL_DSN") != "" || os.Getenv("MYSQL_HOST") != "" {
		db, err = openMySQL(cfg)
	} else {
		db, err = openSQLite(dataDir, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.User{}); err != nil {
		return nil, err
	}
	return db, nil
}

func openSQLite(dataDir string, cfg *gorm.Config) (*gorm.DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, "packwire.db")), cfg)
	if err != nil {
		return nil, err
	}
	// One writer; the account table sees a handful of queries a day.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

type mysqlParams struct {
	host, port, user, pass, name string
}

func mysqlFromEnv() mysqlParams {
	return mysqlParams{
		host: getenv("MYSQL_HOST", "127.0.0.1"),
		port: getenv("MYSQL_PORT", "3306"),
		user: getenv("MYSQL_USER", "root"),
		pass: os.Getenv("MYSQL_PASS"),
		name: getenv("MYSQL_DB", "packwire"),
	}
}

func (p mysqlParams) dsn() string {
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		p.user, p.pass, p.host, p.port, p.name)
}

func openMySQL(cfg *gorm.Config) (*gorm.DB, error) {
	p := mysqlFromEnv()
	dsn := p.dsn()
	db, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil && strings.Contains(err.Error(), "Unknown database") {
		// First run against a fresh MySQL server.
		if cerr := ensureDatabase(p); cerr != nil {
			return nil, fmt.Errorf("create database: %w", cerr)
		}
		db, err = gorm.Open(mysql.Open(dsn), cfg)
	}
	if err != nil {
		return nil, err
	}
	if sqlDB, derr := db.DB(); derr == nil {
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
	}
	return db, nil
}

func ensureDatabase(p mysqlParams) error {
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/", p.user, p.pass, p.host, p.port))
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", p.name))
	return err
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
