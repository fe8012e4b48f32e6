package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/ignite/rtb-ingest/internal/datanorm"
	"github.com/ignite/rtb-ingest/internal/pkg/distlock"
	"github.com/ignite/rtb-ingest/internal/pkg/logger"
	"github.com/ignite/rtb-ingest/internal/reports"
)

// Locker returns the lock guarding writes into table.
type Locker func(table string) distlock.DistLock

// Orchestrator detects the report type of a file and routes it to the
// matching importer.
type Orchestrator struct {
	performance  *Importer
	funnel       *Importer
	bidFiltering *Importer
	quality      *Importer
	locker       Locker
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLocker serializes imports into the same table across processes.
func WithLocker(l Locker) OrchestratorOption {
	return func(o *Orchestrator) { o.locker = l }
}

// NewOrchestrator builds one importer per report family over deps.
func NewOrchestrator(deps Deps, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		performance:  NewPerformanceImporter(deps),
		funnel:       NewFunnelImporter(deps),
		bidFiltering: NewBidFilteringImporter(deps),
		quality:      NewQualityImporter(deps),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Detect classifies the file at path from its header alone.
func (o *Orchestrator) Detect(path string) (reports.Detection, error) {
	return Detect(path)
}

// Detect classifies the CSV at path by reading only its header.
func Detect(path string) (reports.Detection, error) {
	header, err := datanorm.ReadHeader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reports.Detection{Type: reports.Unknown}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return reports.Detection{Type: reports.Unknown}, fmt.Errorf("%w: %v", ErrHeaderRead, err)
	}
	return reports.Classify(header), nil
}

// ImporterFor returns the importer handling t, nil for Unknown.
func (o *Orchestrator) ImporterFor(t reports.Type) *Importer {
	switch t {
	case reports.PerformanceDetail:
		return o.performance
	case reports.FunnelGeo, reports.FunnelPublisher:
		return o.funnel
	case reports.BidFiltering:
		return o.bidFiltering
	case reports.Quality:
		return o.quality
	case reports.Unknown:
		return nil
	}
	return nil
}

// SmartImport detects the report type of path and imports it with the
// matching importer. Every outcome, including files that cannot be opened,
// is reported in the returned Summary.
func (o *Orchestrator) SmartImport(ctx context.Context, path string, opts Options) Summary {
	det, err := o.Detect(path)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrFileNotFound) {
			msg = "File not found: " + path
		}
		logger.Warn("import rejected", "file", path, "error", err)
		return failedSummary(path, reports.Unknown, msg)
	}

	imp := o.ImporterFor(det.Type)
	if imp == nil {
		logger.Warn("import rejected", "file", path, "reason", "unknown report type")
		return failedSummary(path, reports.Unknown, det.UnknownMessage())
	}

	if o.locker != nil {
		table := imp.Table().Name
		lock := o.locker(table)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return failedSummary(path, det.Type, fmt.Sprintf("Failed to acquire import lock for %s: %v", table, err))
		}
		if !ok {
			msg := fmt.Sprintf("Another import into %s is already running; retry when it finishes", table)
			if who := lockHolder(ctx, lock); who != "" {
				msg += " (held by " + who + ")"
			}
			logger.Warn("import rejected", "file", path, "table", table, "reason", ErrImportLocked.Error())
			return failedSummary(path, det.Type, msg)
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn("import lock release failed", "table", table, "error", err)
			}
		}()
	}

	res, err := imp.Import(ctx, path, opts)
	if err != nil {
		logger.Debug("import returned error", "file", path, "error", err)
	}
	return summarize(res)
}

func failedSummary(path string, t reports.Type, msg string) Summary {
	res := newResult(filepath.Base(path))
	res.ReportType = t
	res.Status = StatusRejected
	res.ErrorMessage = msg
	return summarize(res)
}

// lockHolder names the current owner when the lock backend can tell.
func lockHolder(ctx context.Context, lock distlock.DistLock) string {
	h, ok := lock.(interface {
		Holder(context.Context) (string, error)
	})
	if !ok {
		return ""
	}
	who, err := h.Holder(ctx)
	if err != nil {
		return ""
	}
	return who
}
