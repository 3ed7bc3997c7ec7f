package detector

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Alert is a detected attack pattern (spec.md §4.5 "Pattern record").
type Alert struct {
	AttackID      string
	Type          string // POTENTIAL_DOUBLE_SPENDING, FORK_DOUBLE_SPENDING
	Confidence    float64
	Severity      string
	Description   string
	DetectionTime float64
}

// String renders a human-readable, multi-line record, grounded on the
// teacher's Block.String()/chain-summary logging style.
func (a Alert) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", a.AttackID, a.Type)
	fmt.Fprintf(&b, "  severity:    %s\n", a.Severity)
	fmt.Fprintf(&b, "  confidence:  %.2f\n", a.Confidence)
	fmt.Fprintf(&b, "  detected at: %.3f\n", a.DetectionTime)
	fmt.Fprintf(&b, "  %s\n", a.Description)
	return b.String()
}

// AlertListener receives every alert as it is raised. Listeners run
// synchronously in registration order; an async listener should hand the
// alert off to its own goroutine rather than block the caller.
type AlertListener func(Alert)

// AlertManager deduplicates alerts by attack id, fans them out to
// registered listeners, and optionally appends them to a durable sqlite
// audit table (spec.md §4.5 "Alert manager").
type AlertManager struct {
	mu        sync.Mutex
	seen      map[string]bool
	listeners []AlertListener
	db        *sql.DB
	logger    zerolog.Logger
}

// NewAlertManager builds a manager. When dbPath is non-empty, alerts are
// also persisted to a sqlite file at that path (an append-only forensic
// log; in-memory dedup remains authoritative for detection semantics).
func NewAlertManager(dbPath string, logger zerolog.Logger) (*AlertManager, error) {
	m := &AlertManager{seen: make(map[string]bool), logger: logger}
	if dbPath == "" {
		return m, nil
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("detector: open alert log %s: %w", dbPath, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS alerts (
		attack_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		confidence REAL NOT NULL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL,
		detection_time REAL NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("detector: create alert log schema: %w", err)
	}
	m.db = db
	return m, nil
}

// Close releases the underlying sqlite handle, if any.
func (m *AlertManager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Listen registers a listener invoked for every newly-raised alert.
func (m *AlertManager) Listen(l AlertListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Raise records a as seen (no-op if its attack id was already raised),
// persists it if a sqlite log is configured, and fans it out to listeners.
func (m *AlertManager) Raise(a Alert) {
	m.mu.Lock()
	if m.seen[a.AttackID] {
		m.mu.Unlock()
		return
	}
	m.seen[a.AttackID] = true
	listeners := append([]AlertListener(nil), m.listeners...)
	db := m.db
	m.mu.Unlock()

	if db != nil {
		_, err := db.Exec(
			`INSERT OR IGNORE INTO alerts (attack_id, type, confidence, severity, description, detection_time) VALUES (?, ?, ?, ?, ?, ?)`,
			a.AttackID, a.Type, a.Confidence, a.Severity, a.Description, a.DetectionTime,
		)
		if err != nil {
			m.logger.Warn().Err(err).Str("attack_id", a.AttackID).Msg("failed to persist alert to audit log")
		}
	}

	for _, l := range listeners {
		l(a)
	}
}

// nextAttackID formats a monotonic attack id from a running counter.
func nextAttackID(counter uint64) string {
	return "attack_" + strconv.FormatUint(counter, 10)
}
