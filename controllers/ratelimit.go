package controllers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"changeroomapi/models"

	"github.com/labstack/echo/v4"
)

// RateLimiter is an in-memory sliding window counter keyed by arbitrary string.
// Good enough for a single API instance, generation endpoints only.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	startedAt time.Time
	count     int
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: map[string]*rateWindow{}}
}

func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.startedAt) >= window {
		rl.windows[key] = &rateWindow{startedAt: now, count: 1}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// RateLimitMiddleware limits per-user calls on heavy generation routes.
// Must run after UserMiddleware so currentUser is set.
func RateLimitMiddleware(rl *RateLimiter, name string, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get("currentUser").(models.UserAccount)
			if !ok {
				return echo.ErrUnauthorized
			}
			key := fmt.Sprintf("%s:%v", name, user.ID)
			if !rl.Allow(key, limit, window) {
				fmt.Printf("[RateLimit] User %v throttled on %s \n", user.ID, name)
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"message": "Too many requests, please slow down a bit",
				})
			}
			return next(c)
		}
	}
}
