package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
)

// BatchRow is the outcome for one input row
type BatchRow struct {
	Index    int       `json:"index"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// BatchReport summarizes a batch run. Rows are in input order.
type BatchReport struct {
	RunID     uuid.UUID     `json:"run_id"`
	Rows      []BatchRow    `json:"rows"`
	Processed int64         `json:"processed"`
	Failed    int64         `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// BatchCalculator prices many input rows against one definition concurrently.
// Every row gets its own session; catalog lookups are shared through the
// functions passed in opts.
type BatchCalculator struct {
	def         *entity.CalculatorDefinition
	workerCount int
	timeout     time.Duration
	opts        []Option
	logger      *slog.Logger
}

// NewBatchCalculator creates a new batch calculator
func NewBatchCalculator(def *entity.CalculatorDefinition, workerCount int, timeout time.Duration, opts ...Option) *BatchCalculator {
	if workerCount < 1 {
		workerCount = 1
	}
	return &BatchCalculator{
		def:         def,
		workerCount: workerCount,
		timeout:     timeout,
		opts:        opts,
		logger:      slog.Default(),
	}
}

// WithBatchLogger sets the logger for run summaries
func (b *BatchCalculator) WithBatchLogger(l *slog.Logger) *BatchCalculator {
	if l != nil {
		b.logger = l
	}
	return b
}

type rowJob struct {
	index  int
	values map[string]any
}

// Run applies each row to a fresh session and recalculates it. A row with
// rejected inputs or failed formulas counts as failed but still reports its
// snapshot. Rows not reached before ctx ends carry the context error.
func (b *BatchCalculator) Run(ctx context.Context, rows []map[string]any) (*BatchReport, error) {
	start := time.Now()
	report := &BatchReport{
		RunID: uuid.New(),
		Rows:  make([]BatchRow, len(rows)),
	}
	for i := range report.Rows {
		report.Rows[i].Index = i
	}

	jobChan := make(chan rowJob, b.workerCount*2)
	resultChan := make(chan BatchRow, b.workerCount*2)

	var processedCount int64
	var failedCount int64

	var wg sync.WaitGroup
	for i := 0; i < b.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				row := b.runRow(ctx, job)
				if row.Error != "" || (row.Snapshot != nil && row.Snapshot.Failed()) {
					atomic.AddInt64(&failedCount, 1)
					b.logger.Debug("batch row failed",
						slog.Int("worker", workerID),
						slog.Int("row", job.index),
						slog.String("error", row.Error),
					)
				}
				resultChan <- row
			}
		}(i)
	}

	var resultWg sync.WaitGroup
	resultWg.Add(1)
	go func() {
		defer resultWg.Done()
		for row := range resultChan {
			report.Rows[row.Index] = row
			atomic.AddInt64(&processedCount, 1)
		}
	}()

	go func() {
		defer close(jobChan)
		for i, values := range rows {
			select {
			case <-ctx.Done():
				return
			case jobChan <- rowJob{index: i, values: values}:
			}
		}
	}()

	wg.Wait()
	close(resultChan)
	resultWg.Wait()

	report.Processed = processedCount
	report.Failed = failedCount
	report.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		for i := range report.Rows {
			if report.Rows[i].Snapshot == nil && report.Rows[i].Error == "" {
				report.Rows[i].Error = err.Error()
			}
		}
		return report, fmt.Errorf("batch %s interrupted: %w", report.RunID, err)
	}

	b.logger.Info("batch calculation complete",
		slog.String("run_id", report.RunID.String()),
		slog.String("calculator_id", b.def.ID),
		slog.Int64("processed", report.Processed),
		slog.Int64("failed", report.Failed),
		slog.Int("total", len(rows)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (b *BatchCalculator) runRow(ctx context.Context, job rowJob) BatchRow {
	row := BatchRow{Index: job.index}
	session, err := NewSession(b.def, b.timeout, b.opts...)
	if err != nil {
		row.Error = err.Error()
		return row
	}
	// field errors land in the snapshot
	_ = session.Apply(job.values)

	snap, err := session.Recalculate(ctx)
	row.Snapshot = snap
	if err != nil {
		row.Error = err.Error()
	}
	return row
}
