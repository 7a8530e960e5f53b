// Package audit implements the async, buffered audit-trail writer the
// façade (C7) uses to satisfy "every successful operation emits a
// structured audit record".
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/tenant"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	TenantSchema string
	PrincipalID  string
	Action       string
	Resource     string
	ResourceID   string
	Detail       json.RawMessage
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine, batched and
// grouped by tenant schema.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to
// the database and returns immediately. The goroutine exits once the
// context is cancelled (or Close is called) and pending entries are
// flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning is
// logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource", entry.Resource)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database, grouped by tenant schema.
func (w *Writer) flush(entries []Entry) {
	bySchema := make(map[string][]Entry)
	for _, e := range entries {
		bySchema[e.TenantSchema] = append(bySchema[e.TenantSchema], e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for schema, schemaEntries := range bySchema {
		if schema == "" {
			w.logger.Warn("audit entry without tenant schema, skipping", "count", len(schemaEntries))
			continue
		}

		err := tenant.WithSchema(ctx, w.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
			for _, e := range schemaEntries {
				if _, err := conn.Exec(ctx,
					`INSERT INTO audit_log (principal_id, action, resource, resource_id, detail)
					 VALUES ($1, $2, $3, $4, $5)`,
					nullableString(e.PrincipalID), e.Action, e.Resource, nullableString(e.ResourceID), e.Detail,
				); err != nil {
					w.logger.Error("writing audit log entry", "error", err,
						"action", e.Action, "resource", e.Resource, "schema", schema)
				}
			}
			return nil
		})
		if err != nil {
			w.logger.Error("flushing audit batch", "error", err, "schema", schema)
		}
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
