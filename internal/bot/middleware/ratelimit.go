package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает количество команд на пользователя скользящим окном.
// Хранит только метки времени внутри окна, старые вычищает фоновая горутина.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[int64][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт лимитер: не больше limit команд за window.
// limit <= 0 отключает ограничение.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		hits:   make(map[int64][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if limit > 0 && window > 0 {
		go rl.sweepLoop()
	}
	return rl
}

// Close останавливает фоновую очистку. Вызывается на shutdown.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow фиксирует команду пользователя и сообщает, укладывается ли она в лимит.
// Отклонённая команда в окно не попадает.
func (rl *RateLimiter) Allow(userID int64) bool {
	if rl.limit <= 0 || rl.window <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := inWindow(rl.hits[userID], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.hits[userID] = recent
		return false
	}
	rl.hits[userID] = append(recent, now)
	return true
}

// inWindow возвращает хвост меток после cutoff. Метки идут по возрастанию.
func inWindow(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for userID, times := range rl.hits {
		if recent := inWindow(times, cutoff); len(recent) == 0 {
			delete(rl.hits, userID)
		} else {
			rl.hits[userID] = recent
		}
	}
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}
