package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"islebook/booking"
	"islebook/mq"
	"islebook/ratelim"
	"islebook/routes"
	"islebook/rules"
	"islebook/scheduler"
	"islebook/slots"
	"islebook/utils"
	"islebook/waitlist"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// XSS, content sniffing, framing
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		// HSTS (must be on HTTPS)
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		// Referrer and permissions
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// Prevent caching
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s from %s – %v", r.Method, r.RequestURI, r.RemoteAddr, duration)
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

// buildHandlers wires stores, services and handlers together. Mongo
// stores, the real clock and the Redis event emitter in production;
// tests swap these seams for fakes.
func buildHandlers() (routes.Handlers, *scheduler.Runner) {
	clock := utils.RealClock()
	events := mq.NewEmitter()

	slotStore := slots.NewMongoStore()
	ruleStore := rules.NewMongoStore()
	waitStore := waitlist.NewMongoStore()
	bookStore := booking.NewMongoStore()

	ruleSvc := rules.NewService(ruleStore, slotStore, clock)
	gen := slots.NewGenerator(slotStore, ruleStore, clock)
	ledger := slots.NewLedger(slotStore, clock, events)
	queue := waitlist.NewQueue(waitStore, slotStore, clock, events)
	flow := booking.NewFlow(bookStore, ledger, queue, clock)

	// slot cancellation cascades into the booking flow
	ledger.SetBookingCanceller(flow)

	h := routes.Handlers{
		Rules:    rules.NewHandler(ruleSvc),
		Slots:    slots.NewHandler(slotStore, gen, ledger, ruleStore, clock),
		Waitlist: waitlist.NewHandler(queue),
		Bookings: booking.NewHandler(flow, slotStore),
	}
	return h, scheduler.NewRunner(ruleSvc, gen, ledger, queue)
}

func main() {
	// load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	// read port
	port := os.Getenv("PORT")
	if port == "" {
		port = ":8080"
	} else if port[0] != ':' {
		port = ":" + port
	}

	// initialize rate limiter
	rateLimiter := ratelim.NewRateLimiter()

	handlers, runner := buildHandlers()

	router := httprouter.New()
	router.GET("/health", Index)
	router.GET("/csrf", utils.CSRF)
	routes.RoutesWrapper(router, rateLimiter, handlers)

	// background workers: periodic sweeps + notification dispatch
	schedCtx, stopSched := context.WithCancel(context.Background())
	go runner.Run(schedCtx)
	go mq.StartNotificationWorker()

	// apply middleware: logging wraps security headers wraps CORS wraps router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	// create HTTP server
	server := &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Println("🛑 Stopping background sweeps...")
		stopSched()
	})

	// start server
	go func() {
		log.Printf("🚀 Server listening on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	// initiate graceful shutdown
	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Graceful shutdown failed: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
