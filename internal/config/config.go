package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      int
	DBPath    string
	PublicDir string
	RoomGrace time.Duration
	Dev       bool
}

// Parses flags, falling back to environment variables, falling back to defaults.
// A .env file in the working directory is loaded first if one exists.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config

	fs := flag.NewFlagSet("podium", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", 0, "Listen port")
	fs.StringVar(&cfg.DBPath, "db", "", "Path to the sqlite document store")
	fs.StringVar(&cfg.PublicDir, "public", "", "Directory of static assets to serve")
	fs.DurationVar(&cfg.RoomGrace, "grace", 0, "How long an empty room keeps its state")
	fs.BoolVar(&cfg.Dev, "dev", false, "Development-friendly console logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8080
		}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, errors.New("port out of range")
	}

	if cfg.DBPath == "" {
		cfg.DBPath = os.Getenv("PODIUM_DB_PATH")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./data/podium.db"
	}

	if cfg.PublicDir == "" {
		cfg.PublicDir = os.Getenv("PODIUM_PUBLIC_DIR")
	}
	if cfg.PublicDir == "" {
		cfg.PublicDir = "./public"
	}

	if cfg.RoomGrace == 0 {
		if graceStr := os.Getenv("PODIUM_ROOM_GRACE"); graceStr != "" {
			grace, err := time.ParseDuration(graceStr)
			if err != nil {
				return Config{}, errors.New("invalid PODIUM_ROOM_GRACE env variable")
			}
			cfg.RoomGrace = grace
		} else {
			cfg.RoomGrace = 10 * time.Minute
		}
	}
	if cfg.RoomGrace < 0 {
		return Config{}, errors.New("room grace must not be negative")
	}

	return cfg, nil
}
