package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gesture.auth/internal/timeutil"
)

// Pattern is the shape traced by a SimulatedSource over one period.
type Pattern string

const (
	PatternCircle Pattern = "circle"
	PatternEight  Pattern = "eight"
	PatternLine   Pattern = "line"
	PatternStill  Pattern = "still"
)

// ParsePattern validates a pattern name.
func ParsePattern(name string) (Pattern, error) {
	switch p := Pattern(name); p {
	case PatternCircle, PatternEight, PatternLine, PatternStill:
		return p, nil
	}
	return "", fmt.Errorf("unknown simulated pattern %q", name)
}

func (p Pattern) at(phase float64) (x, y float64) {
	theta := 2 * math.Pi * phase
	switch p {
	case PatternCircle:
		return math.Cos(theta), math.Sin(theta)
	case PatternEight:
		return math.Sin(theta), math.Sin(theta) * math.Cos(theta)
	case PatternLine:
		return 2*phase - 1, 0
	}
	return 0, 0
}

// SimulatedSource generates readings for development without a sensor
// board. Each subscriber sees the pattern start at phase zero and repeat
// every period, with amplitude jitter.
type SimulatedSource struct {
	clock   timeutil.Clock
	rate    time.Duration
	period  time.Duration
	noise   float64
	mu      sync.Mutex
	pattern Pattern
	stops   map[string]chan struct{}
	rng     *rand.Rand
}

// NewSimulatedSource emits rateHz samples per second.
func NewSimulatedSource(clock timeutil.Clock, rateHz int, period time.Duration, pattern Pattern, noise float64) *SimulatedSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if rateHz <= 0 {
		rateHz = 40
	}
	return &SimulatedSource{
		clock:   clock,
		rate:    time.Second / time.Duration(rateHz),
		period:  period,
		noise:   noise,
		pattern: pattern,
		stops:   make(map[string]chan struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPattern changes the shape for subsequent samples.
func (s *SimulatedSource) SetPattern(p Pattern) {
	s.mu.Lock()
	s.pattern = p
	s.mu.Unlock()
}

func (s *SimulatedSource) sample(at time.Time, elapsed time.Duration) RawSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase := math.Mod(float64(elapsed)/float64(s.period), 1)
	x, y := s.pattern.at(phase)
	scale := 1 + s.noise*(2*s.rng.Float64()-1)
	return RawSample{At: at, X: x * scale, Y: y * scale, Z: 1}
}

func (s *SimulatedSource) Subscribe() (string, <-chan RawSample) {
	id := uuid.New().String()
	out := make(chan RawSample, 64)
	stop := make(chan struct{})

	s.mu.Lock()
	s.stops[id] = stop
	s.mu.Unlock()

	ticker := s.clock.NewTicker(s.rate)
	start := s.clock.Now()
	go func() {
		defer close(out)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C():
				select {
				case out <- s.sample(now, now.Sub(start)):
				default:
				}
			}
		}
	}()
	return id, out
}

func (s *SimulatedSource) Unsubscribe(id string) {
	s.mu.Lock()
	stop, ok := s.stops[id]
	delete(s.stops, id)
	s.mu.Unlock()
	if ok {
		close(stop)
	}
}
