package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
)

// SessionRecord is one trading-session window used to compute session PnL.
type SessionRecord struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TradeFilter narrows Query results.
type TradeFilter struct {
	Symbol   string
	Side     *domain.Direction
	Since    *time.Time
	Until    *time.Time
	Strategy string
}

func (f TradeFilter) matches(t domain.TradeRecord) bool {
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if f.Side != nil && t.Side != *f.Side {
		return false
	}
	if f.Since != nil && t.EntryTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && t.EntryTime.After(*f.Until) {
		return false
	}
	if f.Strategy != "" && t.Strategy != f.Strategy {
		return false
	}
	return true
}

// JournalRepository is a cache-through store of trades and sessions,
// persisted to two JSON files via write-then-rename so a crash never
// leaves a half-written file. Load is tolerant: a missing file is an
// empty start, a corrupt file is logged and treated as empty — the
// journal never refuses to start.
type JournalRepository struct {
	mu          sync.RWMutex
	trades      []domain.TradeRecord
	sessions    []SessionRecord
	tradesPath  string
	sessionsPath string
	log         zerolog.Logger
}

// NewJournalRepository loads existing state from dataDir/trades.json
// and dataDir/sessions.json (if present) and returns a ready repository.
func NewJournalRepository(dataDir string, log zerolog.Logger) *JournalRepository {
	j := &JournalRepository{
		tradesPath:   filepath.Join(dataDir, "trades.json"),
		sessionsPath: filepath.Join(dataDir, "sessions.json"),
		log:          log,
	}
	j.trades = loadJSON[domain.TradeRecord](j.tradesPath, log)
	j.sessions = loadJSON[SessionRecord](j.sessionsPath, log)
	return j
}

func loadJSON[T any](path string, log zerolog.Logger) []T {
	bs, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("journal: read failed, starting empty")
		}
		return nil
	}
	var out []T
	if err := json.Unmarshal(bs, &out); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("journal: parse failed, starting empty")
		return nil
	}
	return out
}

func writeJSONAtomic(path string, v any) error {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RecordTrade appends a new trade and flushes to disk.
func (j *JournalRepository) RecordTrade(t domain.TradeRecord) error {
	j.mu.Lock()
	j.trades = append(j.trades, t)
	snapshot := append([]domain.TradeRecord(nil), j.trades...)
	j.mu.Unlock()
	return writeJSONAtomic(j.tradesPath, snapshot)
}

// UpdateTrade mutates the trade with id in memory via fn, then flushes.
func (j *JournalRepository) UpdateTrade(id string, fn func(*domain.TradeRecord)) error {
	j.mu.Lock()
	found := false
	for i := range j.trades {
		if j.trades[i].ID == id {
			fn(&j.trades[i])
			found = true
			break
		}
	}
	snapshot := append([]domain.TradeRecord(nil), j.trades...)
	j.mu.Unlock()
	if !found {
		return nil
	}
	return writeJSONAtomic(j.tradesPath, snapshot)
}

// Query returns trades matching filter, in recorded order.
func (j *JournalRepository) Query(filter TradeFilter) []domain.TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []domain.TradeRecord
	for _, t := range j.trades {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// RecordSession appends a session window and flushes to disk.
func (j *JournalRepository) RecordSession(s SessionRecord) error {
	j.mu.Lock()
	j.sessions = append(j.sessions, s)
	snapshot := append([]SessionRecord(nil), j.sessions...)
	j.mu.Unlock()
	return writeJSONAtomic(j.sessionsPath, snapshot)
}

// SessionPnL sums the PnL of trades whose entry time falls within the
// session window [start, end].
func (j *JournalRepository) SessionPnL(session SessionRecord) float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var total float64
	for _, t := range j.trades {
		if !t.EntryTime.Before(session.Start) && !t.EntryTime.After(session.End) {
			total += t.PnL
		}
	}
	return total
}

// WinRate returns the fraction of trades with positive PnL, or 0 if
// there are no trades.
func (j *JournalRepository) WinRate() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range j.trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(j.trades))
}
