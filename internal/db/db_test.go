/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"

	"github.com/friendsincode/grimnir_autopilot/internal/config"
)

type sample struct {
	ID   uint
	Name string
}

func TestConnectInMemory(t *testing.T) {
	db, err := Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(db)

	if err := db.AutoMigrate(&sample{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if err := db.Create(&sample{Name: "a"}).Error; err != nil {
		t.Fatalf("Create: %v", err)
	}
	var got sample
	if err := db.First(&got).Error; err != nil || got.Name != "a" {
		t.Fatalf("First = %+v, %v", got, err)
	}
	if err := db.Delete(&got).Error; err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
