package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/biclient"
	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/observability"
)

const (
	defaultImportPollInterval  = 2 * time.Second
	defaultRefreshPollInterval = 10 * time.Second
	defaultRefreshPollMax      = 72
	cleanupTimeout             = 2 * time.Minute
)

// Engine drives workspace provisioning against the BI platform.
type Engine struct {
	bi         *biclient.Client
	log        *zap.Logger
	namePrefix string

	importPollInterval time.Duration
	// importPollMax bounds the import poll; zero keeps it unbounded and
	// leaves cancellation to the caller's context.
	importPollMax       int
	refreshPollInterval time.Duration
	refreshPollMax      int

	sleep func(ctx context.Context, d time.Duration) error
}

// Options tune the engine. Zero values fall back to the defaults: 2s
// unbounded import polling and 10s refresh polling capped at 72 rounds.
type Options struct {
	// NamePrefix is prepended to every workspace name at creation time,
	// typically an environment marker. Import and dataset names are not
	// prefixed.
	NamePrefix          string
	ImportPollInterval  time.Duration
	ImportPollMax       int
	RefreshPollInterval time.Duration
	RefreshPollMax      int
}

func NewEngine(bi *biclient.Client, opts Options, log *zap.Logger) *Engine {
	e := &Engine{
		bi:                  bi,
		log:                 log,
		namePrefix:          opts.NamePrefix,
		importPollInterval:  opts.ImportPollInterval,
		importPollMax:       opts.ImportPollMax,
		refreshPollInterval: opts.RefreshPollInterval,
		refreshPollMax:      opts.RefreshPollMax,
		sleep:               sleepContext,
	}
	if e.importPollInterval <= 0 {
		e.importPollInterval = defaultImportPollInterval
	}
	if e.refreshPollInterval <= 0 {
		e.refreshPollInterval = defaultRefreshPollInterval
	}
	if e.refreshPollMax <= 0 {
		e.refreshPollMax = defaultRefreshPollMax
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Config) check() error {
	if c == nil || c.credentials.CredentialType == "" {
		return core.NewConfigurationError("provisioning config is not resolved")
	}
	return nil
}

// InitializeFromTemplate creates a fresh workspace and provisions it
// through ImportToWorkspace. On any failure after the workspace exists,
// the workspace is deleted again so no half-provisioned workspace
// leaks; the original error is returned, never the cleanup's. Capacity
// assignment happens only after a fully successful import.
func (e *Engine) InitializeFromTemplate(ctx context.Context, cfg *Config) (*core.ProvisioningResult, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	start := time.Now()
	name := e.namePrefix + cfg.name

	group, err := e.bi.CreateGroup(ctx, name)
	if err != nil {
		observability.ProvisionDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		return nil, err
	}
	log := e.log.With(zap.String("workspace_id", group.ID), zap.String("workspace", name))
	log.Info("workspace created")

	result, err := e.runImport(ctx, group.ID, cfg, log)
	if err == nil && cfg.capacityID != "" {
		err = e.assignCapacity(ctx, group.ID, cfg.capacityID, log)
	}
	if err != nil {
		log.Error("provisioning failed, deleting workspace", zap.Error(err))
		e.compensateDelete(ctx, group.ID, log)
		observability.ProvisionDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		return nil, err
	}

	outcome := "ready"
	if !result.RefreshCompleted {
		outcome = "partial"
	}
	observability.ProvisionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return result, nil
}

// ImportToWorkspace provisions an already existing workspace from the
// template. Unlike InitializeFromTemplate it never deletes the
// workspace on failure; the caller owns it.
func (e *Engine) ImportToWorkspace(ctx context.Context, workspaceID string, cfg *Config) (*core.ProvisioningResult, error) {
	if workspaceID == "" {
		return nil, core.NewMissingParameterError("workspaceID")
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	log := e.log.With(zap.String("workspace_id", workspaceID))
	return e.runImport(ctx, workspaceID, cfg, log)
}

// runImport executes the import pipeline and folds any step failure
// into the single outward creation-failed error. The cause stays
// reachable through errors.Unwrap; the message stays generic.
func (e *Engine) runImport(ctx context.Context, workspaceID string, cfg *Config, log *zap.Logger) (*core.ProvisioningResult, error) {
	result, err := e.importPipeline(ctx, workspaceID, cfg, log)
	if err != nil {
		log.Error("provisioning step failed", zap.Error(err))
		if core.CodeOf(err) == core.ErrCreationFailed {
			return nil, err
		}
		return nil, core.NewCreationError(err)
	}
	return result, nil
}

func (e *Engine) importPipeline(ctx context.Context, workspaceID string, cfg *Config, log *zap.Logger) (*core.ProvisioningResult, error) {
	group, err := e.bi.GetGroup(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, core.NewUnknownResourceError("workspace", workspaceID)
	}

	added, err := e.copyGroupUsers(ctx, cfg.templateGroupID, group.ID)
	if err != nil {
		return nil, err
	}
	log.Info("workspace membership synced", zap.Int("users_added", added))

	pkg, err := cfg.Package(ctx)
	if err != nil {
		return nil, err
	}
	imp, err := e.bi.PostImport(ctx, group.ID, cfg.name, pkg)
	if err != nil {
		return nil, err
	}
	log.Info("import submitted", zap.String("import_id", imp.ID), zap.Int("package_bytes", len(pkg)))

	if err := e.awaitImport(ctx, group.ID, imp.ID, cfg.name, log); err != nil {
		return nil, err
	}

	dataset, err := e.findDataset(ctx, group.ID, cfg.name)
	if err != nil {
		return nil, err
	}
	if err := e.bi.TakeDatasetOwnership(ctx, group.ID, dataset.ID); err != nil {
		return nil, err
	}
	log.Info("dataset ownership taken", zap.String("dataset_id", dataset.ID))

	if len(cfg.params) > 0 {
		if err := e.bi.UpdateParameters(ctx, group.ID, dataset.ID, cfg.params); err != nil {
			return nil, err
		}
		log.Info("dataset parameters updated", zap.Int("parameters", len(cfg.params)))
	}

	datasources, err := e.bi.ListDatasources(ctx, group.ID, dataset.ID)
	if err != nil {
		return nil, err
	}
	if len(datasources) == 0 {
		return nil, core.NewUnknownResourceError("datasource", dataset.ID)
	}
	// Only the first datasource is rewired. Template packages ship a
	// single warehouse datasource; anything beyond that is out of scope.
	ds := datasources[0]
	if err := e.bi.UpdateDatasourceCredentials(ctx, ds.GatewayID, ds.DatasourceID, cfg.credentials); err != nil {
		return nil, err
	}
	log.Info("datasource credentials updated",
		zap.String("datasource_id", ds.DatasourceID),
		zap.String("gateway_id", ds.GatewayID))

	if err := e.bi.RefreshDataset(ctx, group.ID, dataset.ID); err != nil {
		return nil, err
	}
	refreshed, err := e.awaitRefresh(ctx, group.ID, dataset.ID, log)
	if err != nil {
		return nil, err
	}

	if len(cfg.scheduleTimes) > 0 || len(cfg.scheduleDays) > 0 {
		schedule := biclient.RefreshSchedule{
			Days:            cfg.scheduleDays,
			Times:           cfg.scheduleTimes,
			Enabled:         true,
			LocalTimeZoneID: "UTC",
			NotifyOption:    "NoNotification",
		}
		if err := e.bi.UpdateRefreshSchedule(ctx, group.ID, dataset.ID, schedule); err != nil {
			return nil, err
		}
		log.Info("refresh schedule installed",
			zap.Strings("days", cfg.scheduleDays),
			zap.Strings("times", cfg.scheduleTimes))
	}

	reports, err := e.collectReports(ctx, group.ID, dataset.ID)
	if err != nil {
		return nil, err
	}

	return &core.ProvisioningResult{
		WorkspaceID:      group.ID,
		WorkspaceName:    group.Name,
		DatasetID:        dataset.ID,
		DatasourceID:     ds.DatasourceID,
		RefreshCompleted: refreshed,
		Reports:          reports,
	}, nil
}

// copyGroupUsers adds every member of the template workspace to the
// target workspace, skipping identities that are already present. The
// membership snapshot is taken once up front, so re-runs are idempotent.
func (e *Engine) copyGroupUsers(ctx context.Context, templateGroupID, groupID string) (int, error) {
	want, err := e.bi.ListGroupUsers(ctx, templateGroupID)
	if err != nil {
		return 0, err
	}
	have, err := e.bi.ListGroupUsers(ctx, groupID)
	if err != nil {
		return 0, err
	}
	existing := make(map[string]struct{}, len(have))
	for _, u := range have {
		existing[u.Identifier] = struct{}{}
	}
	added := 0
	for _, u := range want {
		if _, ok := existing[u.Identifier]; ok {
			continue
		}
		if err := e.bi.AddGroupUser(ctx, groupID, u); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// awaitImport polls until the import leaves the Publishing state. The
// wait is unbounded unless importPollMax is set; cancellation comes
// from ctx.
func (e *Engine) awaitImport(ctx context.Context, groupID, importID, name string, log *zap.Logger) error {
	for i := 0; ; i++ {
		imp, err := e.bi.GetImport(ctx, groupID, importID)
		if err != nil {
			return err
		}
		if imp.ImportState != biclient.ImportStatePublishing {
			observability.ImportPollIterations.Observe(float64(i))
			if imp.ImportState == biclient.ImportStateFailed {
				return core.NewFailedImportError(name, imp.ImportState)
			}
			log.Info("import finished", zap.String("state", imp.ImportState), zap.Int("polls", i))
			return nil
		}
		if e.importPollMax > 0 && i+1 >= e.importPollMax {
			return fmt.Errorf("import %q still publishing after %d polls", name, i+1)
		}
		if err := e.sleep(ctx, e.importPollInterval); err != nil {
			return err
		}
	}
}

// findDataset locates the imported dataset by display name. The import
// response does not carry the dataset id reliably, so the submitted
// display name is the only join key; zero or multiple matches are
// reported instead of guessing.
func (e *Engine) findDataset(ctx context.Context, groupID, name string) (*biclient.Dataset, error) {
	datasets, err := e.bi.ListDatasets(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var matches []biclient.Dataset
	for _, d := range datasets {
		if d.Name == name {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, core.NewUnknownResourceError("dataset", name)
	default:
		return nil, core.NewAmbiguousResourceError("dataset", name, len(matches))
	}
}

// awaitRefresh waits for the freshly triggered refresh to reach a final
// state. Exhausting the poll budget is not an error: the workspace is
// usable, only not yet refreshed, and the false return marks that.
func (e *Engine) awaitRefresh(ctx context.Context, groupID, datasetID string, log *zap.Logger) (bool, error) {
	for i := 0; i < e.refreshPollMax; i++ {
		if err := e.sleep(ctx, e.refreshPollInterval); err != nil {
			return false, err
		}
		refreshes, err := e.bi.ListRefreshes(ctx, groupID, datasetID, 1)
		if err != nil {
			return false, err
		}
		if biclient.AllFinal(refreshes) {
			observability.RefreshPollIterations.Observe(float64(i + 1))
			log.Info("dataset refresh reached a final state", zap.Int("polls", i+1))
			return true, nil
		}
	}
	observability.RefreshTimeoutTotal.Inc()
	log.Warn("dataset refresh still running after poll budget", zap.Int("polls", e.refreshPollMax))
	return false, nil
}

func (e *Engine) collectReports(ctx context.Context, groupID, datasetID string) ([]core.ReportSummary, error) {
	reports, err := e.bi.ListReports(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]core.ReportSummary, 0, len(reports))
	for _, r := range reports {
		if r.DatasetID != datasetID {
			continue
		}
		pages, err := e.bi.ListReportPages(ctx, groupID, r.ID)
		if err != nil {
			return nil, err
		}
		summary := core.ReportSummary{
			ReportID:  r.ID,
			Name:      r.Name,
			EmbedURL:  r.EmbedURL,
			DatasetID: r.DatasetID,
			Pages:     make([]core.ReportPage, 0, len(pages)),
		}
		for _, p := range pages {
			summary.Pages = append(summary.Pages, core.ReportPage{
				Name:        p.Name,
				DisplayName: p.DisplayName,
				Order:       p.Order,
			})
		}
		out = append(out, summary)
	}
	return out, nil
}

// assignCapacity validates the capacity against the ones visible to the
// service identity before assigning, so a typo fails as an unknown
// resource instead of an opaque platform 404.
func (e *Engine) assignCapacity(ctx context.Context, groupID, capacityID string, log *zap.Logger) error {
	capacities, err := e.bi.ListCapacities(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, c := range capacities {
		if c.ID == capacityID {
			known = true
			break
		}
	}
	if !known {
		return core.NewUnknownResourceError("capacity", capacityID)
	}
	if err := e.bi.AssignToCapacity(ctx, groupID, capacityID); err != nil {
		return err
	}
	log.Info("workspace assigned to capacity", zap.String("capacity_id", capacityID))
	return nil
}

// compensateDelete removes a workspace after a failed provisioning run.
// It runs detached from the caller's context so cleanup still happens
// when the failure was a cancellation, and its own error is only
// logged, never returned.
func (e *Engine) compensateDelete(ctx context.Context, groupID string, log *zap.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := e.bi.DeleteGroup(cleanupCtx, groupID); err != nil {
		observability.CompensatingDeleteTotal.WithLabelValues("failed").Inc()
		log.Error("compensating workspace delete failed", zap.Error(err))
		return
	}
	observability.CompensatingDeleteTotal.WithLabelValues("deleted").Inc()
	log.Warn("workspace deleted after failed provisioning")
}

// TriggerRefresh starts a dataset refresh and waits for it the same way
// initial provisioning does. The returned flag reports whether the
// refresh reached a final state within the poll budget.
func (e *Engine) TriggerRefresh(ctx context.Context, workspaceID, datasetID string) (bool, error) {
	if workspaceID == "" {
		return false, core.NewMissingParameterError("workspaceID")
	}
	if datasetID == "" {
		return false, core.NewMissingParameterError("datasetID")
	}
	if err := e.bi.RefreshDataset(ctx, workspaceID, datasetID); err != nil {
		return false, err
	}
	log := e.log.With(zap.String("workspace_id", workspaceID), zap.String("dataset_id", datasetID))
	return e.awaitRefresh(ctx, workspaceID, datasetID, log)
}

// DeleteWorkspace removes a provisioned workspace.
func (e *Engine) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return core.NewMissingParameterError("workspaceID")
	}
	if err := e.bi.DeleteGroup(ctx, workspaceID); err != nil {
		return err
	}
	e.log.Info("workspace deleted", zap.String("workspace_id", workspaceID))
	return nil
}
