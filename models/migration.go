package models

import (
	"log"

	"bitbucket.org/mmdatafocus/loans_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Client{},
		&Credit{}, &Installment{}, &Payment{},
		&CashMovement{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
