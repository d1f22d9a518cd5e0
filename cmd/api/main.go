package main

import (
	"flag"
	"fmt"
	"log/slog"

	"storyfront/internal"
)

func readConfig() (*internal.AppConfig, error) {
	var cfg internal.AppConfig

	configPath := flag.String("config", "config.yaml", "Path to config")

	flag.Parse()

	err := internal.ReadConfig(*configPath, &cfg)

	return &cfg, err
}

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("Failed to read config", slog.String("error", err.Error()))
		return
	}

	if cfg.CookieSecret == "" {
		slog.Error("Failed to read config", slog.String("error", "COOKIE_SECRET is not set"))
		return
	}

	app, err := internal.NewApp(cfg)
	if err != nil {
		slog.Error("Failed to create app", slog.String("error", err.Error()))
		return
	}
	defer app.Close()

	router := internal.BuildRouter(app)

	addr := fmt.Sprintf(":%s", app.Config.Port)

	slog.Info("Starting story front end", slog.String("addr", addr), slog.String("backend", cfg.Backend.URL))
	err = router.Run(addr)
	slog.Error("Finishing", slog.String("error", err.Error()))
}
