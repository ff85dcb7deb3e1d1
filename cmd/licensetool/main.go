package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"narong-license-tool/internal/httpapi"
	"narong-license-tool/internal/license"
	"narong-license-tool/internal/store"
	"narong-license-tool/internal/telegram"
)

func main() {
	var (
		botToken    = flag.String("bot-token", os.Getenv("BOT_TOKEN"), "Telegram bot token (or env BOT_TOKEN); empty runs HTTP-only")
		adminChatID = flag.String("admin-chat-id", getenvDefault("ADMIN_CHAT_ID", "0"), "Admin chat id (or env ADMIN_CHAT_ID)")
		dbPath      = flag.String("db", getenvDefault("DB_PATH", "./data/licensetool.db"), "DB path (or env DB_PATH)")
		httpAddr    = flag.String("http", getenvDefault("HTTP_ADDR", ":8080"), "HTTP listen address (or env HTTP_ADDR)")
		// Secrets default to the built-in constants; override for rotation.
		masterSecret   = flag.String("master-secret", os.Getenv("MASTER_SECRET"), "License signing secret (or env MASTER_SECRET)")
		activationSalt = flag.String("activation-salt", os.Getenv("ACTIVATION_SALT"), "Activation key salt (or env ACTIVATION_SALT)")
	)
	flag.Parse()

	gen := license.NewGenerator(license.Config{
		MasterSecret:   *masterSecret,
		ActivationSalt: *activationSalt,
	})

	st, err := store.OpenBBolt(*dbPath, gen)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := httpapi.New(st, gen)
	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	if *botToken != "" {
		adminID, err := strconv.ParseInt(*adminChatID, 10, 64)
		if err != nil || adminID == 0 {
			log.Fatalf("invalid admin chat id: %q", *adminChatID)
		}
		bot, err := telegram.NewBot(*botToken, adminID, st, gen)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		go func() {
			if err := bot.Run(ctx); err != nil {
				log.Printf("bot error: %v", err)
				stop()
			}
		}()
	} else {
		log.Printf("no bot token configured, running HTTP-only")
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
