package main

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/pkg/errors"
)

// Orm struct
type Orm struct {
	DB *gorm.DB
}

// NewDb init new database connection
func NewDb(config *RelayConfig) *Orm {
	db, err := gorm.Open("postgres", config.Database.Connection)
	if err != nil {
		panic(err)
	}

	db.DB().SetConnMaxLifetime(time.Duration(config.Database.ConnectionLifetime) * time.Second)
	db.DB().SetMaxOpenConns(config.Database.MaxOpenConnections)
	db.DB().SetMaxIdleConns(config.Database.MaxIdleConnections)
	db.LogMode(config.Database.Logging)

	return newOrm(db)
}

func newOrm(db *gorm.DB) *Orm {
	db.SingularTable(true)

	return &Orm{
		DB: db,
	}
}

// transaction runs fn inside a database transaction, rolling back on error
func (orm *Orm) transaction(fn func(tx *gorm.DB) error) error {
	return orm.DB.Transaction(fn)
}

// autoMigrate creates the relay tables without the migration files; used for
// local sqlite setups.
func (orm *Orm) autoMigrate() error {
	err := orm.DB.AutoMigrate(&Bot{}, &Message{}, &TrialRecord{}, &ActivationCode{}, &Account{}).Error

	return errors.Wrap(err, "auto migrate")
}

// Close connection
func (orm *Orm) Close() {
	orm.DB.Close()
}
