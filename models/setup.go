package models

import (
	"log/slog"
	"os"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Database struct {
	GormDB *gorm.DB
}

var DB *Database

func ConnectDatabase() {
	gormLogger := slogGorm.New(
		slogGorm.WithHandler(slog.Default().With("gorm", true).Handler()),
		slogGorm.SetLogLevel(slogGorm.DefaultLogType, slog.LevelDebug),
	)

	database, err := gorm.Open(postgres.Open(os.Getenv("DATABASE_URL")), &gorm.Config{
		Logger: gormLogger,
	})

	if err != nil {
		panic("Failed to connect to database!")
	}

	err = database.AutoMigrate(&User{}, &Organization{}, &Repository{}, &SyncStatus{})
	if err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		panic(err)
	}

	DB = &Database{GormDB: database}
}
