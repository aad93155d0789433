package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gluk-w/grbbs/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Setting keys.
const (
	SettingMaxConcurrentClients = "max_concurrent_clients"
	SettingDefaultSpeed         = "default_speed"
)

var DB *gorm.DB

func Init() error {
	db, err := Open(config.Cfg.DatabasePath, logger.Warn)
	if err != nil {
		return err
	}
	DB = db

	if err := seedDefaults(); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the sqlite database at dbPath and migrates
// the schema.
func Open(dbPath string, level logger.LogLevel) (*gorm.DB, error) {
	if dbDir := filepath.Dir(dbPath); dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Setting{}, &User{}, &AccessEvent{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func seedDefaults() error {
	defaults := map[string]string{
		SettingMaxConcurrentClients: strconv.Itoa(config.Cfg.MaxConcurrentClients),
		SettingDefaultSpeed:         config.Cfg.DefaultSpeed,
	}

	for key, value := range defaults {
		var count int64
		DB.Model(&Setting{}).Where("key = ?", key).Count(&count)
		if count == 0 {
			if err := DB.Create(&Setting{Key: key, Value: value}).Error; err != nil {
				return fmt.Errorf("seed setting %s: %w", key, err)
			}
		}
	}
	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// GetIntSetting returns an integer setting, or fallback if it is missing or
// not a number.
func GetIntSetting(key string, fallback int) int {
	v, err := GetSetting(key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func ListSettings() ([]Setting, error) {
	var settings []Setting
	if err := DB.Order("key").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// User helpers

func GetUserByUsername(username string) (*User, error) {
	var u User
	if err := DB.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByID(id uint) (*User, error) {
	var u User
	if err := DB.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func CreateUser(user *User) error {
	return DB.Create(user).Error
}

func UpdateUserPassword(id uint, hash string) error {
	return DB.Model(&User{}).Where("id = ?", id).Update("password_hash", hash).Error
}

func UpdateUserMenuMode(id uint, mode string) error {
	return DB.Model(&User{}).Where("id = ?", id).Update("menu_mode", mode).Error
}

// TouchLastLogin records a login at t and returns the previous login time
// (nil on first login).
func TouchLastLogin(id uint, t time.Time) (*time.Time, error) {
	u, err := GetUserByID(id)
	if err != nil {
		return nil, err
	}
	prev := u.LastLogin
	if err := DB.Model(&User{}).Where("id = ?", id).Update("last_login", t).Error; err != nil {
		return nil, err
	}
	return prev, nil
}

func UserCount() (int64, error) {
	var count int64
	err := DB.Model(&User{}).Count(&count).Error
	return count, err
}

func GetFirstSysop() (*User, error) {
	var u User
	if err := DB.Where("role = ?", RoleSysop).Order("id").First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
