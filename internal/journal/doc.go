// Package journal records link lifecycle events in SQLite.
//
// SQLiteRepository reads and writes the link_events table created by the
// migrations package. Sink adapts a Repository to link.EventSink: events are
// buffered on a channel and written by a single goroutine, and events that
// arrive while the buffer is full are counted and dropped rather than
// stalling the control loop.
//
// Usage:
//
//	db, _ := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true})
//	_ = db.Migrate(ctx, migrations.FS)
//
//	sink := journal.NewSink(journal.NewSQLiteRepository(db.DB), journal.SinkOptions{})
//	defer sink.Close()
//	l.SetEventSink(sink)
package journal
