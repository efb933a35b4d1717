package main

import (
	"net/http"
)

func main() {
	cfg := loadConfig()
	logger := NewLogger(cfg.LogLevel)

	srv := NewServer(cfg, logger)
	defer srv.Close()

	http.HandleFunc("/healthz", srv.handleHealth)
	http.HandleFunc("/ws", srv.handleWS)

	logger.Infof("lsimd listening on %s", cfg.Addr)
	logger.Fatalf("%v", http.ListenAndServe(cfg.Addr, nil))
}
