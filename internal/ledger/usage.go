package ledger

import (
	"maps"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// DayLayout formats the keys of Usage.DailyUsage.
const DayLayout = "2006-01-02"

// DayUsage is one calendar day of backend traffic.
type DayUsage struct {
	Characters int64 `json:"characters"`
	Requests   int64 `json:"requests"`
}

// Usage is the persisted character and request tally.
type Usage struct {
	TotalCharacters int64               `json:"totalCharacters"`
	TotalRequests   int64               `json:"totalRequests"`
	DailyUsage      map[string]DayUsage `json:"dailyUsage"`
}

func cloneUsage(u Usage) Usage {
	u.DailyUsage = maps.Clone(u.DailyUsage)
	if u.DailyUsage == nil {
		u.DailyUsage = map[string]DayUsage{}
	}
	return u
}

// UsageLedger tallies the text sent to the backend, in total and per local
// calendar day. Every update is written to disk.
type UsageLedger struct {
	state   *Guarded[Usage]
	path    string
	metrics *Metrics
	logger  *log.Logger
	now     func() time.Time
}

// NewUsageLedger loads <dataDir>/usage.json if present.
func NewUsageLedger(dataDir string, logger *log.Logger, metrics *Metrics) *UsageLedger {
	if logger == nil {
		logger = log.Default()
	}
	l := &UsageLedger{
		path:    filepath.Join(dataDir, UsageFile),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}

	var u Usage
	if err := loadJSON(l.path, &u); err != nil {
		l.logger.Warn("Failed to load usage", "error", err)
		u = Usage{}
	}
	l.state = NewGuarded(cloneUsage(u))

	return l
}

// Record adds one request of len(text) characters, counted in code points.
func (l *UsageLedger) Record(text string) {
	chars := int64(utf8.RuneCountInString(text))
	day := l.now().Format(DayLayout)

	l.state.Update(func(u *Usage) {
		u.TotalCharacters += chars
		u.TotalRequests++

		d := u.DailyUsage[day]
		d.Characters += chars
		d.Requests++
		u.DailyUsage[day] = d

		if err := saveJSON(l.path, u); err != nil {
			l.logger.Error("Failed to save usage", "error", err)
		}
	})

	if l.metrics != nil {
		l.metrics.characters.Add(float64(chars))
	}
}

// Snapshot returns a deep copy of the usage record.
func (l *UsageLedger) Snapshot() Usage {
	return l.state.Snapshot(cloneUsage)
}
