package main

import (
	"flag"
	"fmt"
	"log/slog"

	"storyfront/internal/stub"
)

func main() {
	port := flag.String("port", "5000", "Port to listen on")
	secret := flag.String("cookie-secret", "stub-secret", "Secret for the session cookie")

	flag.Parse()

	router := stub.NewServer().Router([]byte(*secret))

	addr := fmt.Sprintf(":%s", *port)

	slog.Info("Starting stub story server", slog.String("addr", addr))
	err := router.Run(addr)
	slog.Error("Finishing", slog.String("error", err.Error()))
}
