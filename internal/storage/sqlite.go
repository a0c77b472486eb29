package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is fixed-width so stored timestamps compare correctly as
// strings inside SQLite. Millisecond precision keeps same-second messages
// ordered; identity is carried by the message ID, not the timestamp.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Store wraps a SQLite database with methods for messages, summaries,
// preferences, and workflow runs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "recap.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for tests and ancillary queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Messages ---

// UpsertMessage stores a message if (id, channel_id) is new. It returns true
// when a row was inserted and false when the message already existed.
// A duplicate is never an error.
func (s *Store) UpsertMessage(m Message) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO messages (id, channel_id, channel_name, user_id, username, text, clean_text, timestamp, thread_ts, reactions, files, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, channel_id) DO NOTHING`,
		m.ID, m.ChannelID, m.ChannelName, m.UserID, m.Username, m.Text, m.CleanText,
		m.Timestamp.UTC().Format(timeFormat), m.ThreadTS,
		orEmptyArray(m.Reactions), orEmptyArray(m.Files),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func orEmptyArray(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}

// QueryMessages returns messages with timestamp in [start, end], ordered
// ascending. With a non-empty channels list, only those channel IDs match.
func (s *Store) QueryMessages(start, end time.Time, channels []string) ([]Message, error) {
	query := `
		SELECT id, channel_id, channel_name, user_id, username, text, clean_text, timestamp, thread_ts, reactions, files
		FROM messages WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{start.UTC().Format(timeFormat), end.UTC().Format(timeFormat)}

	if len(channels) > 0 {
		query += ` AND channel_id IN (?` + strings.Repeat(",?", len(channels)-1) + `)`
		for _, c := range channels {
			args = append(args, c)
		}
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.ChannelName, &m.UserID, &m.Username, &m.Text, &m.CleanText, &ts, &m.ThreadTS, &m.Reactions, &m.Files); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp for message %s: %w", m.ID, err)
		}
		m.Timestamp = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// CountMessages returns the total number of stored messages.
func (s *Store) CountMessages() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// --- Summaries ---

func (s *Store) SaveSummary(sum Summary) error {
	_, err := s.db.Exec(`
		INSERT INTO summaries (id, type, summary_text, pdf_path, message_count, channels, generated_at, range_start, range_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Type, sum.SummaryText, sum.PDFPath, sum.MessageCount,
		orEmptyArray(sum.Channels),
		sum.GeneratedAt.UTC().Format(timeFormat),
		sum.RangeStart.UTC().Format(timeFormat),
		sum.RangeEnd.UTC().Format(timeFormat),
	)
	return err
}

func (s *Store) GetSummary(id string) (Summary, error) {
	var sum Summary
	var generatedAt, rangeStart, rangeEnd string
	err := s.db.QueryRow(`
		SELECT id, type, summary_text, pdf_path, message_count, channels, generated_at, range_start, range_end
		FROM summaries WHERE id = ?`, id,
	).Scan(&sum.ID, &sum.Type, &sum.SummaryText, &sum.PDFPath, &sum.MessageCount, &sum.Channels, &generatedAt, &rangeStart, &rangeEnd)
	if err == sql.ErrNoRows {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, err
	}
	if sum.GeneratedAt, err = time.Parse(timeFormat, generatedAt); err != nil {
		return Summary{}, fmt.Errorf("parsing generated_at: %w", err)
	}
	if sum.RangeStart, err = time.Parse(timeFormat, rangeStart); err != nil {
		return Summary{}, fmt.Errorf("parsing range_start: %w", err)
	}
	if sum.RangeEnd, err = time.Parse(timeFormat, rangeEnd); err != nil {
		return Summary{}, fmt.Errorf("parsing range_end: %w", err)
	}
	return sum, nil
}

func (s *Store) ListSummaries(limit, offset int) ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, type, summary_text, pdf_path, message_count, channels, generated_at, range_start, range_end
		FROM summaries ORDER BY generated_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Summary
	for rows.Next() {
		var sum Summary
		var generatedAt, rangeStart, rangeEnd string
		if err := rows.Scan(&sum.ID, &sum.Type, &sum.SummaryText, &sum.PDFPath, &sum.MessageCount, &sum.Channels, &generatedAt, &rangeStart, &rangeEnd); err != nil {
			return nil, err
		}
		if sum.GeneratedAt, err = time.Parse(timeFormat, generatedAt); err != nil {
			return nil, fmt.Errorf("parsing generated_at: %w", err)
		}
		if sum.RangeStart, err = time.Parse(timeFormat, rangeStart); err != nil {
			return nil, fmt.Errorf("parsing range_start: %w", err)
		}
		if sum.RangeEnd, err = time.Parse(timeFormat, rangeEnd); err != nil {
			return nil, fmt.Errorf("parsing range_end: %w", err)
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// --- Preferences ---

// GetPreferences returns the workspace preferences singleton, creating it
// with defaults on first read.
func (s *Store) GetPreferences() (Preferences, error) {
	p, err := s.readPreferences()
	if err == nil {
		return p, nil
	}
	if err != ErrNotFound {
		return Preferences{}, err
	}

	p = DefaultPreferences()
	p.UpdatedAt = time.Now().UTC()
	if err := s.writePreferences(p); err != nil {
		return Preferences{}, fmt.Errorf("creating default preferences: %w", err)
	}
	return p, nil
}

// UpdatePreferences overwrites the singleton row.
func (s *Store) UpdatePreferences(p Preferences) error {
	p.ID = "default"
	p.UpdatedAt = time.Now().UTC()
	if p.FilterChannels == "" {
		p.FilterChannels = "[]"
	}
	return s.writePreferences(p)
}

func (s *Store) readPreferences() (Preferences, error) {
	var p Preferences
	var includeThreads int
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT id, summary_style, include_threads, filter_channels, report_frequency, slack_user_id, notification_channel, updated_at
		FROM preferences WHERE id = 'default'`,
	).Scan(&p.ID, &p.SummaryStyle, &includeThreads, &p.FilterChannels, &p.ReportFrequency, &p.SlackUserID, &p.NotificationChannel, &updatedAt)
	if err == sql.ErrNoRows {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, err
	}
	p.IncludeThreads = includeThreads != 0
	if p.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return Preferences{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

func (s *Store) writePreferences(p Preferences) error {
	includeThreads := 0
	if p.IncludeThreads {
		includeThreads = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO preferences (id, summary_style, include_threads, filter_channels, report_frequency, slack_user_id, notification_channel, updated_at)
		VALUES ('default', ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary_style = excluded.summary_style,
			include_threads = excluded.include_threads,
			filter_channels = excluded.filter_channels,
			report_frequency = excluded.report_frequency,
			slack_user_id = excluded.slack_user_id,
			notification_channel = excluded.notification_channel,
			updated_at = excluded.updated_at`,
		p.SummaryStyle, includeThreads, p.FilterChannels, p.ReportFrequency,
		p.SlackUserID, p.NotificationChannel, p.UpdatedAt.UTC().Format(timeFormat),
	)
	return err
}

// --- Workflow runs ---

func (s *Store) SaveWorkflowRun(run WorkflowRun) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_runs (id, kind, status, started_at, last_error)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, run.StartedAt.UTC().Format(timeFormat), run.LastError,
	)
	return err
}

// FinishWorkflowRun marks a run as completed or failed.
func (s *Store) FinishWorkflowRun(id, status, lastError string) error {
	res, err := s.db.Exec(`
		UPDATE workflow_runs SET status = ?, finished_at = ?, last_error = ? WHERE id = ?`,
		status, time.Now().UTC().Format(timeFormat), lastError, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListWorkflowRuns(limit int) ([]WorkflowRun, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, status, started_at, finished_at, last_error
		FROM workflow_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []WorkflowRun
	for rows.Next() {
		var run WorkflowRun
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&run.ID, &run.Kind, &run.Status, &startedAt, &finishedAt, &run.LastError); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", run.ID, err)
		}
		if finishedAt.Valid && finishedAt.String != "" {
			if run.FinishedAt, err = time.Parse(timeFormat, finishedAt.String); err != nil {
				return nil, fmt.Errorf("parsing finished_at for run %s: %w", run.ID, err)
			}
		}
		results = append(results, run)
	}
	return results, rows.Err()
}

// DeleteWorkflowRunsBefore removes terminated runs started before cutoff and
// returns the number of rows deleted.
func (s *Store) DeleteWorkflowRunsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM workflow_runs WHERE started_at < ? AND status != 'running'`,
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
