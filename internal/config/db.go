package config

import (
	"os"
	"time"
)

// DBConfig describes the MySQL store of admin accounts and refresh tokens.
// The pool is small: only logins, refreshes and password changes hit it.
type DBConfig struct {
	User            string
	Pass            string
	Host            string
	Port            string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// LoadDBConfig reads MySQL settings.  DB_USER, DB_HOST, DB_PORT and DB_NAME
// are required; DB_PASS may be empty.
//   DB_MAX_OPEN_CONNS    – pool size (default 10)
//   DB_MAX_IDLE_CONNS    – idle connections kept, capped at the pool size (default 5)
//   DB_CONN_MAX_LIFETIME – connection recycle age (default 30m)
//   DB_PING_TIMEOUT      – startup ping budget (default 5s)
func LoadDBConfig() DBConfig {
	dc := DBConfig{
		User:            must("DB_USER"),
		Pass:            os.Getenv("DB_PASS"),
		Host:            must("DB_HOST"),
		Port:            must("DB_PORT"),
		Name:            must("DB_NAME"),
		MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		PingTimeout:     envDur("DB_PING_TIMEOUT", 5*time.Second),
	}
	if dc.MaxOpenConns < 1 {
		dc.MaxOpenConns = 1
	}
	if dc.MaxIdleConns > dc.MaxOpenConns {
		dc.MaxIdleConns = dc.MaxOpenConns
	}
	if dc.PingTimeout <= 0 {
		dc.PingTimeout = 5 * time.Second
	}
	return dc
}
