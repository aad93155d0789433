package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gluk-w/grbbs/internal/config"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh temp-file database as the package DB.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	prev := DB
	DB = db
	t.Cleanup(func() {
		Close()
		DB = prev
	})
}

func TestSeedDefaults(t *testing.T) {
	setupTestDB(t)
	config.Cfg.MaxConcurrentClients = 7
	config.Cfg.DefaultSpeed = "2400"

	if err := seedDefaults(); err != nil {
		t.Fatalf("seedDefaults: %v", err)
	}
	if got := GetIntSetting(SettingMaxConcurrentClients, 0); got != 7 {
		t.Errorf("max_concurrent_clients = %d, want 7", got)
	}

	// Existing values are not overwritten on the next start.
	if err := SetSetting(SettingMaxConcurrentClients, "12"); err != nil {
		t.Fatal(err)
	}
	if err := seedDefaults(); err != nil {
		t.Fatal(err)
	}
	if got := GetIntSetting(SettingMaxConcurrentClients, 0); got != 12 {
		t.Errorf("reseed overwrote setting: %d", got)
	}
}

func TestSettings(t *testing.T) {
	setupTestDB(t)

	if _, err := GetSetting("missing"); err == nil {
		t.Error("expected error for missing setting")
	}
	if got := GetIntSetting("missing", 4); got != 4 {
		t.Errorf("fallback = %d", got)
	}
	if err := SetSetting("motd", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := SetSetting("motd", "world"); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetSetting("motd"); v != "world" {
		t.Errorf("motd = %q", v)
	}
	if got := GetIntSetting("motd", 9); got != 9 {
		t.Errorf("non-numeric setting should fall back, got %d", got)
	}

	settings, err := ListSettings()
	if err != nil || len(settings) != 1 {
		t.Errorf("ListSettings = %+v, %v", settings, err)
	}
}

func TestUsers(t *testing.T) {
	setupTestDB(t)

	u := &User{Username: "sysop", PasswordHash: "x", Role: RoleSysop}
	if err := CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := CreateUser(&User{Username: "sysop", PasswordHash: "y"}); err == nil {
		t.Error("duplicate username accepted")
	}

	loaded, err := GetUserByUsername("sysop")
	if err != nil || !loaded.IsSysop() {
		t.Fatalf("GetUserByUsername = %+v, %v", loaded, err)
	}
	if loaded.MenuMode != "2" {
		t.Errorf("default menu mode = %q", loaded.MenuMode)
	}
	first, err := GetFirstSysop()
	if err != nil || first.ID != u.ID {
		t.Errorf("GetFirstSysop = %+v, %v", first, err)
	}

	if err := UpdateUserMenuMode(u.ID, "4"); err != nil {
		t.Fatal(err)
	}
	if err := UpdateUserPassword(u.ID, "newhash"); err != nil {
		t.Fatal(err)
	}
	loaded, _ = GetUserByID(u.ID)
	if loaded.MenuMode != "4" || loaded.PasswordHash != "newhash" {
		t.Errorf("updates not persisted: %+v", loaded)
	}

	if n, _ := UserCount(); n != 1 {
		t.Errorf("UserCount = %d", n)
	}
}

func TestTouchLastLogin(t *testing.T) {
	setupTestDB(t)
	u := &User{Username: "alice", PasswordHash: "x"}
	if err := CreateUser(u); err != nil {
		t.Fatal(err)
	}

	first := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	prev, err := TouchLastLogin(u.ID, first)
	if err != nil || prev != nil {
		t.Fatalf("first login prev = %v, %v", prev, err)
	}

	prev, err = TouchLastLogin(u.ID, first.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if prev == nil || !prev.Equal(first) {
		t.Errorf("prev = %v, want %v", prev, first)
	}
}
