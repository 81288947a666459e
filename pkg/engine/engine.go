// Package engine runs synchronization passes: fetch the device report,
// extract and decode it, normalize the records, resolve the owner's
// catalog, and reconcile the batch. One pass at a time per catalog; all
// collaborators are injected, no ambient global state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshhive/meshsync/internal/telemetry"
	"github.com/meshhive/meshsync/pkg/catalog"
	"github.com/meshhive/meshsync/pkg/meshcli"
	"github.com/meshhive/meshsync/pkg/meshdata"
	"github.com/meshhive/meshsync/pkg/report"
)

// PassSummary is what the triggering caller receives for one sync pass.
// RecordErrors lists per-record failures that were excluded from the batch;
// PassError, when set, means the pass aborted with zero catalog writes.
type PassSummary struct {
	ShortName      string        `json:"short_name"`
	RecordsWritten int           `json:"records_written"`
	RecordErrors   []error       `json:"record_errors,omitempty"`
	PassError      error         `json:"pass_error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Engine coordinates sync passes against per-owner catalogs.
type Engine struct {
	source     meshcli.DeviceSource
	resolver   *catalog.Resolver
	normalizer *meshdata.Normalizer
	logger     zerolog.Logger
	metrics    telemetry.Collector

	mu    sync.Mutex
	locks map[string]*sync.Mutex // one lock per catalog short name

	snapMu sync.RWMutex
	last   *meshdata.Snapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics attaches a telemetry collector.
func WithMetrics(collector telemetry.Collector) Option {
	return func(e *Engine) {
		if collector != nil {
			e.metrics = collector
		}
	}
}

// New creates an engine.
func New(source meshcli.DeviceSource, resolver *catalog.Resolver, opts ...Option) *Engine {
	e := &Engine{
		source:     source,
		resolver:   resolver,
		normalizer: meshdata.NewNormalizer(),
		logger:     zerolog.Nop(),
		metrics:    telemetry.Noop(),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LastSnapshot returns the most recent successfully reconciled IR, or nil.
// Safe to call concurrently with a running pass; reads never touch the
// catalog.
func (e *Engine) LastSnapshot() *meshdata.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.last
}

// SyncFromReport runs one full pass from the text report. This is the
// fallback input path, guarded by the connection sentinel and
// balanced-brace extraction.
func (e *Engine) SyncFromReport(ctx context.Context) PassSummary {
	start := time.Now()
	summary := e.syncFromReport(ctx)
	summary.Duration = time.Since(start)
	e.finish(&summary)
	return summary
}

func (e *Engine) syncFromReport(ctx context.Context) PassSummary {
	text, err := e.source.FetchReport(ctx)
	if err != nil {
		return PassSummary{PassError: err}
	}

	sections, err := report.ExtractSections(text)
	if err != nil {
		return PassSummary{PassError: err}
	}

	decoded := report.Decode(sections)
	for name, decErr := range decoded.Errors {
		e.logger.Warn().Str("section", name).Err(decErr).Msg("section failed to decode")
	}

	nodesTree, ok := decoded.Map(report.SectionNodes)
	if !ok {
		if decErr := decoded.Err(report.SectionNodes); decErr != nil {
			return PassSummary{PassError: decErr}
		}
		return PassSummary{PassError: &report.DecodeError{
			Section: report.SectionNodes,
			Cause:   fmt.Errorf("section absent from report"),
		}}
	}

	identity, firmware, err := e.identityFromReport(decoded)
	if err != nil {
		return PassSummary{PassError: err}
	}

	snap := meshdata.NewSnapshot(identity, firmware)
	var recordErrs []error

	nodes, errs := e.normalizer.NormalizeNodes(nodesTree)
	snap.Nodes = nodes
	recordErrs = append(recordErrs, errs...)

	if list, ok := decoded.List(report.SectionChannels); ok {
		channels, errs := e.normalizer.NormalizeChannelList(list)
		snap.Channels = channels
		recordErrs = append(recordErrs, errs...)
	}

	if prefs, ok := decoded.Map(report.SectionPreferences); ok {
		snap.Preferences = e.normalizer.NormalizePreferences(prefs, identity.NodeNum)
	}
	if modPrefs, ok := decoded.Map(report.SectionModulePreferences); ok {
		snap.ModulePreferences = e.normalizer.NormalizeModulePreferences(modPrefs, identity.NodeNum)
	}

	return e.reconcile(ctx, snap, recordErrs)
}

// identityFromReport derives the device identity from the owner line plus
// the myInfo and metadata sections.
func (e *Engine) identityFromReport(decoded *report.DecodeResult) (meshdata.DeviceIdentity, string, error) {
	ownerLine, ok := decoded.String(report.SectionOwner)
	if !ok {
		return meshdata.DeviceIdentity{}, "", &report.DecodeError{
			Section: report.SectionOwner,
			Cause:   fmt.Errorf("section absent from report"),
		}
	}
	longName, shortName, err := e.normalizer.NormalizeOwnerLine(ownerLine)
	if err != nil {
		return meshdata.DeviceIdentity{}, "", err
	}

	var nodeNum uint64
	if myInfo, ok := decoded.Map(report.SectionMyInfo); ok {
		if num, numOK := asUint(myInfo["myNodeNum"]); numOK {
			nodeNum = num
		}
	}

	var firmware string
	if metadata, ok := decoded.Map(report.SectionMetadata); ok {
		if fw, fwOK := metadata["firmwareVersion"].(string); fwOK {
			firmware = fw
		}
	}

	identity, err := e.normalizer.NormalizeIdentity(longName, shortName, nodeNum)
	return identity, firmware, err
}

// SyncFromConfigExport runs one full pass from the YAML configuration
// export, the canonical structured input path.
func (e *Engine) SyncFromConfigExport(ctx context.Context) PassSummary {
	start := time.Now()
	summary := e.syncFromConfigExport(ctx)
	summary.Duration = time.Since(start)
	e.finish(&summary)
	return summary
}

func (e *Engine) syncFromConfigExport(ctx context.Context) PassSummary {
	data, err := e.source.FetchConfigExport(ctx)
	if err != nil {
		return PassSummary{PassError: err}
	}

	export, err := report.DecodeConfigExport(data)
	if err != nil {
		return PassSummary{PassError: err}
	}
	if len(export.Nodes) == 0 {
		return PassSummary{PassError: &report.DecodeError{
			Section: report.SectionNodes,
			Cause:   fmt.Errorf("export has no nodes mapping"),
		}}
	}

	var recordErrs []error
	nodes, errs := e.normalizer.NormalizeNodes(export.Nodes)
	recordErrs = append(recordErrs, errs...)

	identity, err := e.identityFromExport(export, nodes)
	if err != nil {
		return PassSummary{PassError: err}
	}

	snap := meshdata.NewSnapshot(identity, "")
	snap.Nodes = nodes

	if len(export.Channels) > 0 {
		channels, errs := e.normalizer.NormalizeChannels(export.Channels)
		snap.Channels = channels
		recordErrs = append(recordErrs, errs...)
	}
	if len(export.Config) > 0 {
		snap.Preferences = e.normalizer.NormalizePreferences(export.Config, identity.NodeNum)
	}
	if len(export.ModuleConfig) > 0 {
		snap.ModulePreferences = e.normalizer.NormalizeModulePreferences(export.ModuleConfig, identity.NodeNum)
	}

	return e.reconcile(ctx, snap, recordErrs)
}

// identityFromExport builds the owner identity from the export's owner
// fields. The export carries no node number for the owner directly, so the
// owning node is located by short name among the normalized nodes.
func (e *Engine) identityFromExport(export *report.ConfigExport, nodes []*meshdata.NodeRecord) (meshdata.DeviceIdentity, error) {
	identity, err := e.normalizer.NormalizeIdentity(export.Owner, export.OwnerShort, 0)
	if err != nil {
		return meshdata.DeviceIdentity{}, err
	}
	for _, n := range nodes {
		if n.ShortName == identity.ShortName {
			identity.NodeNum = n.Num
			break
		}
	}
	return identity, nil
}

// reconcile applies a normalized snapshot to the owner's catalog under the
// per-catalog lock. The lock serializes passes for one owner; passes for
// different owners may overlap freely.
func (e *Engine) reconcile(ctx context.Context, snap *meshdata.Snapshot, recordErrs []error) PassSummary {
	summary := PassSummary{
		ShortName:    snap.Identity.ShortName,
		RecordErrors: recordErrs,
	}

	lock := e.lockFor(snap.Identity.ShortName)
	lock.Lock()
	defer lock.Unlock()

	store, created, err := e.resolver.Resolve(snap.Identity)
	if err != nil {
		summary.PassError = err
		return summary
	}
	if created {
		e.logger.Info().Str("catalog", snap.Identity.ShortName).Msg("catalog created")
	}

	reconciler := catalog.NewReconciler(store)
	written, err := reconciler.Apply(ctx, snap)
	if err != nil {
		summary.PassError = err
		return summary
	}
	summary.RecordsWritten = written

	state := catalog.SyncState{
		LastSyncAt:      snap.CapturedAt,
		RecordsWritten:  written,
		RecordErrors:    len(recordErrs),
		FirmwareVersion: snap.FirmwareVersion,
	}
	if err := reconciler.RecordSyncState(ctx, state); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record sync state")
	}

	e.snapMu.Lock()
	e.last = snap
	e.snapMu.Unlock()

	return summary
}

// finish logs and counts a completed pass.
func (e *Engine) finish(summary *PassSummary) {
	outcome := telemetry.OutcomeOK
	if summary.PassError != nil {
		outcome = telemetry.OutcomeError
		e.logger.Error().
			Err(summary.PassError).
			Dur("duration", summary.Duration).
			Msg("sync pass aborted")
	} else {
		e.logger.Info().
			Str("catalog", summary.ShortName).
			Int("records_written", summary.RecordsWritten).
			Int("record_errors", len(summary.RecordErrors)).
			Dur("duration", summary.Duration).
			Msg("sync pass complete")
	}
	for _, recErr := range summary.RecordErrors {
		e.logger.Warn().Err(recErr).Msg("record excluded from batch")
	}

	e.metrics.ObservePass(outcome, summary.Duration)
	e.metrics.AddRecordsWritten(summary.RecordsWritten)
	e.metrics.AddRecordErrors(len(summary.RecordErrors))
}

func (e *Engine) lockFor(shortName string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[shortName]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[shortName] = lock
	}
	return lock
}

// RunDaemon runs passes on a fixed interval until the context is
// cancelled. When useExport is set the export path is used; otherwise the
// text report fallback.
func (e *Engine) RunDaemon(ctx context.Context, interval time.Duration, useExport bool) error {
	e.logger.Info().Dur("interval", interval).Bool("export", useExport).Msg("starting daemon")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runOnce(ctx, useExport)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("daemon stopped")
			return ctx.Err()
		case <-ticker.C:
			e.runOnce(ctx, useExport)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context, useExport bool) {
	if useExport {
		e.SyncFromConfigExport(ctx)
		return
	}
	e.SyncFromReport(ctx)
}

// asUint mirrors the loose numeric coercion used during normalization for
// the one field the engine reads directly.
func asUint(v any) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case uint64:
		return t, true
	}
	return 0, false
}
