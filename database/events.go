package database

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-motion/motion"
	"github.com/nvr-ai/go-motion/recording"
)

// Name implements recording.Publisher.
func (d *Database) Name() string { return "postgres" }

// Publish stores the run and all of its events in one transaction.
func (d *Database) Publish(ctx context.Context, summary *recording.Summary) error {
	return d.InTx(ctx, func(ctx context.Context) error {
		q := d.querier(ctx)
		_, err := q.ExecContext(ctx,
			`INSERT INTO motion_runs (run_id, recording, source, output, fps, frames_read, frames_written, processed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			summary.RunID,
			summary.Recording,
			summary.Source,
			summary.Output,
			summary.FPS,
			summary.FramesRead,
			summary.FramesWritten,
			summary.ProcessedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert run %s", summary.RunID)
		}

		for i, e := range summary.Events {
			_, err := q.ExecContext(ctx,
				`INSERT INTO motion_events (run_id, seq, start_seconds, end_seconds, duration_seconds)
				 VALUES ($1, $2, $3, $4, $5)`,
				summary.RunID, i+1,
				motion.Round3(e.Start), motion.Round3(e.End), motion.Round3(e.Duration),
			)
			if err != nil {
				return errors.Wrapf(err, "failed to insert event %d of run %s", i+1, summary.RunID)
			}
		}
		return nil
	})
}

// Events returns the events of the most recent run of recording, in order.
func (d *Database) Events(ctx context.Context, recordingName string) ([]motion.Event, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT e.start_seconds, e.end_seconds
		FROM motion_events e
		WHERE e.run_id = (
			SELECT run_id FROM motion_runs
			WHERE recording = $1
			ORDER BY processed_at DESC
			LIMIT 1
		)
		ORDER BY e.seq
	`, recordingName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []motion.Event
	for rows.Next() {
		var start, end float64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		e, err := motion.NewEvent(start, end)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "failed to read events")
}
