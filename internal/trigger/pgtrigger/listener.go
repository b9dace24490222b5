package pgtrigger

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/queue"
)

const outputPlugin = "pgoutput"

// TrackedTable names one table (optionally column- and row-filtered) a
// publication should track.
type TrackedTable struct {
	Schema      string
	Table       string
	Columns     []string // empty = all columns
	WhereClause string    // empty = no row filter
}

// Config configures one running Postgres trigger listener.
type Config struct {
	ConnString      string
	SlotName        string
	PublicationName string
	Tables          []TrackedTable
	BasicMode       bool // track all tables, no column/row filters

	WorkspaceID  string
	RunnablePath string
	IsFlow       bool
	Caller       job.CallerIdentity
	TriggerPath  string
}

// Listener drives one replication connection: create slot/publication if
// needed, START_REPLICATION, decode pgoutput messages, push one job per
// change, send standby status updates on keepalive request.
type Listener struct {
	cfg   Config
	q     *queue.Queue
	dec   *decoder
}

func New(cfg Config, q *queue.Queue) *Listener {
	return &Listener{cfg: cfg, q: q, dec: newDecoder()}
}

// Run connects, ensures the publication and slot exist, starts replication,
// and streams until ctx is canceled or the connection errors.
func (l *Listener) Run(ctx context.Context) error {
	connConfig, err := pgconn.ParseConfig(l.cfg.ConnString)
	if err != nil {
		return fmt.Errorf("parse postgres connection string: %w", err)
	}
	connConfig.RuntimeParams["replication"] = "database"

	conn, err := pgconn.ConnectConfig(ctx, connConfig)
	if err != nil {
		return fmt.Errorf("connect for logical replication: %w", err)
	}
	defer conn.Close(ctx)

	pg14, err := l.checkVersionCompat(ctx, conn)
	if err != nil {
		return err
	}

	if err := l.ensurePublication(ctx, conn, pg14); err != nil {
		return err
	}
	if err := l.ensureSlot(ctx, conn); err != nil {
		return err
	}

	pluginArgs := []string{"proto_version '1'", fmt.Sprintf("publication_names '%s'", l.cfg.PublicationName)}
	sysident, err := pgconn.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("identify system: %w", err)
	}
	if err := pgconn.StartReplication(ctx, conn, l.cfg.SlotName, sysident.XLogPos, pgconn.StartReplicationOptions{PluginArgs: pluginArgs}); err != nil {
		return fmt.Errorf("start replication: %w", err)
	}

	clientXLogPos := sysident.XLogPos
	standbyDeadline := time.Now().Add(5 * time.Second)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(standbyDeadline) {
			if err := pgconn.SendStandbyStatusUpdate(ctx, conn, pgconn.StandbyStatusUpdate{WALWritePosition: clientXLogPos}); err != nil {
				return fmt.Errorf("send standby status update: %w", err)
			}
			standbyDeadline = time.Now().Add(5 * time.Second)
		}

		recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		msg, err := conn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("receive replication message: %w", err)
		}

		cd, ok := msg.(*pgproto3.CopyData)
		if !ok {
			continue
		}
		if len(cd.Data) == 0 {
			continue
		}

		switch cd.Data[0] {
		case 'k': // PrimaryKeepaliveMessage
			if len(cd.Data) < 18 {
				continue
			}
			walEnd := binary.BigEndian.Uint64(cd.Data[1:9])
			reply := cd.Data[17] != 0
			if walEnd > uint64(clientXLogPos) {
				clientXLogPos = pgconn.LSN(walEnd)
			}
			if reply {
				if err := pgconn.SendStandbyStatusUpdate(ctx, conn, pgconn.StandbyStatusUpdate{WALWritePosition: clientXLogPos}); err != nil {
					return fmt.Errorf("send standby status update: %w", err)
				}
				standbyDeadline = time.Now().Add(5 * time.Second)
			}

		case 'w': // XLogData
			if len(cd.Data) < 25 {
				continue
			}
			walStart := binary.BigEndian.Uint64(cd.Data[1:9])
			walEnd := binary.BigEndian.Uint64(cd.Data[9:17])
			payload := cd.Data[25:]

			change, err := l.dec.decodeXLogData(payload)
			if err != nil {
				return fmt.Errorf("decode pgoutput message: %w", err)
			}
			if change != nil {
				if err := l.fire(ctx, change); err != nil {
					return fmt.Errorf("fire postgres trigger job: %w", err)
				}
			}
			if walEnd > uint64(clientXLogPos) {
				clientXLogPos = pgconn.LSN(walEnd)
			}
			_ = walStart
		}
	}
}

func (l *Listener) fire(ctx context.Context, change *Change) error {
	args := map[string]any{
		"schema": change.Schema,
		"table":  change.Table,
		"kind":   change.Kind,
		"new":    change.New,
	}
	if change.Old != nil {
		args["old"] = change.Old
	}

	j := (trigger.PushArgs{
		WorkspaceID:  l.cfg.WorkspaceID,
		RunnablePath: l.cfg.RunnablePath,
		IsFlow:       l.cfg.IsFlow,
		Args:         args,
		Caller:       l.cfg.Caller,
		TriggerKind:  job.TriggerPostgres,
		TriggerPath:  l.cfg.TriggerPath,
	}).NewJob()

	_, err := l.q.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	return err
}

// checkVersionCompat implements the original's PG14 rejection rule: a
// server_version starting with "14" cannot run WHERE-clause filtering,
// selective column tracking, or whole-schema tracking — those publication
// features were only added in PostgreSQL 15.
func (l *Listener) checkVersionCompat(ctx context.Context, conn *pgconn.PgConn) (bool, error) {
	result := conn.ExecParams(ctx, "SHOW server_version", nil, nil, nil, nil).Read()
	if result.Err != nil {
		return false, fmt.Errorf("query server_version: %w", result.Err)
	}
	version := ""
	if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
		version = string(result.Rows[0][0])
	}
	return checkPG14Compat(version, l.cfg.BasicMode, l.cfg.Tables)
}

// checkPG14Compat is the pure decision behind checkVersionCompat, split out
// so the PG14 rejection rule can be tested without a live connection.
func checkPG14Compat(version string, basicMode bool, tables []TrackedTable) (pg14 bool, err error) {
	pg14 = strings.HasPrefix(version, "14")
	if !pg14 || basicMode {
		return pg14, nil
	}
	for _, t := range tables {
		if t.WhereClause != "" || len(t.Columns) > 0 {
			return pg14, fmt.Errorf(
				"postgres server is running version 14, which does not support WHERE-clause filtering or selective column tracking; these publication features require PostgreSQL 15 or later")
		}
	}
	return pg14, nil
}

func (l *Listener) ensurePublication(ctx context.Context, conn *pgconn.PgConn, pg14 bool) error {
	exists := conn.ExecParams(ctx,
		"SELECT 1 FROM pg_publication WHERE pubname = $1",
		[][]byte{[]byte(l.cfg.PublicationName)}, nil, nil, nil).Read()
	if exists.Err != nil {
		return fmt.Errorf("check existing publication: %w", exists.Err)
	}
	if len(exists.Rows) > 0 {
		return nil
	}

	query := buildCreatePublicationSQL(l.cfg.PublicationName, l.cfg.BasicMode, l.cfg.Tables, pg14)
	if _, err := conn.Exec(ctx, query).ReadAll(); err != nil {
		return fmt.Errorf("create publication: %w", err)
	}
	return nil
}

// buildCreatePublicationSQL mirrors lib.rs's create_pg_publication: basic
// mode (or no tracked tables) publishes FOR ALL TABLES; otherwise it lists
// each table explicitly, adding column lists and WHERE filters only on
// PG15+ since PG14 rejects that publication syntax.
func buildCreatePublicationSQL(name string, basicMode bool, tables []TrackedTable, pg14 bool) string {
	query := "CREATE PUBLICATION " + quoteIdent(name)
	if basicMode || len(tables) == 0 {
		return query + " FOR ALL TABLES"
	}

	query += " FOR TABLE ONLY "
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		full := quoteIdent(t.Schema) + "." + quoteIdent(t.Table)
		if !pg14 && len(t.Columns) > 0 {
			cols := make([]string, 0, len(t.Columns))
			for _, c := range t.Columns {
				cols = append(cols, quoteIdent(c))
			}
			full += " (" + strings.Join(cols, ", ") + ")"
		}
		if !pg14 && t.WhereClause != "" {
			full += " WHERE (" + t.WhereClause + ")"
		}
		parts = append(parts, full)
	}
	query += strings.Join(parts, ", ")
	return query
}

func (l *Listener) ensureSlot(ctx context.Context, conn *pgconn.PgConn) error {
	exists := conn.ExecParams(ctx,
		"SELECT 1 FROM pg_replication_slots WHERE slot_name = $1",
		[][]byte{[]byte(l.cfg.SlotName)}, nil, nil, nil).Read()
	if exists.Err != nil {
		return fmt.Errorf("check existing replication slot: %w", exists.Err)
	}
	if len(exists.Rows) > 0 {
		return nil
	}

	_, err := pgconn.CreateReplicationSlot(ctx, conn, l.cfg.SlotName, outputPlugin, pgconn.CreateReplicationSlotOptions{})
	if err != nil {
		return fmt.Errorf("create logical replication slot: %w", err)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
