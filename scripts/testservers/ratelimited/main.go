// Command ratelimited is a sample target for local benchmark runs. It serves
// a cheap /light and a CPU-bound /heavy endpoint behind a per-user token
// bucket and answers 429 once a user exceeds it.
package main

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	port := pflag.Int("port", 8080, "Listening port")
	rps := pflag.Float64("user-rps", 5, "Requests per second allowed per user")
	burst := pflag.Int("user-burst", 10, "Burst allowed per user")
	userHeader := pflag.String("user-header", "X-User-ID", "Header identifying the user")
	heavyWork := pflag.Duration("heavy-work", 20*time.Millisecond, "CPU time spent per heavy request")
	pflag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	srv := newServer(*rps, *burst, *userHeader, *heavyWork)
	addr := fmt.Sprintf(":%d", *port)
	logger.Info("sample target listening",
		zap.String("addr", addr),
		zap.Float64("user_rps", *rps),
		zap.Int("user_burst", *burst),
	)
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// limiterStore keeps one token bucket per user.
type limiterStore struct {
	mu      sync.Mutex
	perUser map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	if burst < 1 {
		burst = 1
	}
	return &limiterStore{
		perUser: map[string]*rate.Limiter{},
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

func (s *limiterStore) allow(user string) bool {
	s.mu.Lock()
	l, ok := s.perUser[user]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.perUser[user] = l
	}
	s.mu.Unlock()
	return l.Allow()
}

type server struct {
	limits     *limiterStore
	userHeader string
	heavyWork  time.Duration
}

func newServer(rps float64, burst int, userHeader string, heavyWork time.Duration) *server {
	return &server{
		limits:     newLimiterStore(rps, burst),
		userHeader: userHeader,
		heavyWork:  heavyWork,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/light", s.limited(func(w http.ResponseWriter, r *http.Request, user string) {
		respondJSON(w, http.StatusOK, map[string]any{"user": user, "class": "light"})
	}))
	mux.HandleFunc("/heavy", s.limited(func(w http.ResponseWriter, r *http.Request, user string) {
		digest := burn(s.heavyWork)
		respondJSON(w, http.StatusOK, map[string]any{"user": user, "class": "heavy", "digest": fmt.Sprintf("%x", digest[:4])})
	}))
	return mux
}

func (s *server) limited(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(s.userHeader))
		if user == "" {
			user = "anonymous"
		}
		if !s.limits.allow(user) {
			w.Header().Set("Retry-After", "1")
			respondJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limited", "user": user})
			return
		}
		next(w, r, user)
	}
}

// burn hashes in a loop for roughly d of CPU time.
func burn(d time.Duration) [32]byte {
	sum := sha256.Sum256([]byte("throttlebench"))
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		for i := 0; i < 64; i++ {
			sum = sha256.Sum256(sum[:])
		}
	}
	return sum
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
