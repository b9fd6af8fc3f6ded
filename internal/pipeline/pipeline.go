// Package pipeline runs the fetch, download and render phases over one window.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carebook/internal/attachments"
	"carebook/internal/cache"
	"carebook/internal/components/assert"
	"carebook/internal/components/chrono"
	"carebook/internal/components/telemetry"
	"carebook/internal/notebook"
	"carebook/internal/portal"
	"carebook/internal/record"
	"carebook/internal/render"
	"carebook/internal/walker"
)

const (
	report_pipeline_phase      = "pipeline.phase"
	report_pipeline_fetched    = "pipeline.fetched"
	report_pipeline_checkpoint = "pipeline.checkpoint"
)

type Phase string

const (
	PhaseFetch    Phase = "fetch"
	PhaseDownload Phase = "download"
	PhaseRender   Phase = "render"
)

// Phases is every phase in the order they run.
var Phases = []Phase{PhaseFetch, PhaseDownload, PhaseRender}

// FetchedCategories are walked per service, handouts are walked once per run.
var FetchedCategories = []record.Category{record.Timeline, record.Comment, record.ContactResponse}

// Portal is what the fetch and download phases need from the portal client.
type Portal interface {
	walker.Source
	attachments.Source
}

// Directory is the read-through listing of services and children, see portal.Directory.
type Directory interface {
	walker.Relations
	Services(ctx context.Context) (portal.Services, error)
	Children(ctx context.Context) (portal.Children, error)
	Match(ctx context.Context, name string) (portal.Service, error)
}

// State is the part of the state db a run writes to.
type State interface {
	KV
	StartRun(ctx context.Context, phase, window string, started time.Time) (string, error)
	FinishRun(ctx context.Context, id string, finished time.Time, runErr error) error
}

type Options struct {
	Window record.Window
	// Service restricts the run to the service of that name, empty means every service.
	Service   string
	OutputDir string
	MaxPages  int
	Children  []notebook.Child
	PostBuild []string
}

type Pipeline struct {
	portal    Portal
	directory Directory
	store     cache.Store
	state     State
	renderer  render.Renderer
	opts      Options

	time chrono.TimeAPI
	// base is handed to the components the pipeline builds, they scope it themselves.
	base telemetry.API
	tel  telemetry.API
}

// New builds a pipeline, `p` and `directory` may be nil when only the render phase
// is going to run.
func New(p Portal, directory Directory, store cache.Store, state State, renderer render.Renderer, opts Options, timeAPI chrono.TimeAPI, tel telemetry.API) Pipeline {
	assert.NotNil(state)
	assert.NotEmptyStr(opts.OutputDir)
	assert.NotNil(timeAPI)
	assert.NotNil(tel)
	return Pipeline{
		portal:    p,
		directory: directory,
		store:     store,
		state:     state,
		renderer:  renderer,
		opts:      opts,
		time:      timeAPI,
		base:      tel,
		tel:       telemetry.NewScopedAPI("pipeline", tel),
	}
}

// Run runs the given phases in order, stopping at the first one that fails.
func (p Pipeline) Run(ctx context.Context, phases []Phase) error {
	for _, phase := range Phases {
		if !hasPhase(phases, phase) {
			continue
		}
		err := p.runPhase(ctx, phase)
		if err != nil {
			return err
		}
	}
	return nil
}

func hasPhase(phases []Phase, phase Phase) bool {
	if len(phases) == 0 {
		return true
	}
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (p Pipeline) runPhase(ctx context.Context, phase Phase) (err error) {
	runID, err := p.state.StartRun(ctx, string(phase), p.opts.Window.String(), p.time.Now())
	if err != nil {
		return err
	}
	defer func() {
		finishErr := p.state.FinishRun(ctx, runID, p.time.Now(), err)
		if err == nil {
			err = finishErr
		}
	}()

	p.tel.ReportDebug("phase started", phase, p.opts.Window.String())
	switch phase {
	case PhaseFetch:
		err = p.Fetch(ctx)
	case PhaseDownload:
		err = p.Download(ctx)
	case PhaseRender:
		err = p.Render(ctx)
	default:
		err = fmt.Errorf("unknown phase '%s'", phase)
	}
	if err != nil {
		p.tel.ReportBroken(report_pipeline_phase, err, phase)
		return fmt.Errorf("%s: %w", phase, err)
	}
	return nil
}

// services returns the services the run covers.
func (p Pipeline) services(ctx context.Context) ([]portal.Service, error) {
	if p.opts.Service == "" {
		services, err := p.directory.Services(ctx)
		if err != nil {
			return nil, err
		}
		return services.Sorted(), nil
	}
	svc, err := p.directory.Match(ctx, p.opts.Service)
	if err != nil {
		return nil, err
	}
	return []portal.Service{svc}, nil
}

func (p Pipeline) requirePortal() error {
	if p.portal == nil || p.directory == nil {
		return errors.New("this phase needs a portal session")
	}
	return nil
}

// Fetch walks every category of every service into the cache and advances the
// checkpoint when nothing failed. A fetch limited to one service leaves the
// checkpoint alone, the other services have not been gathered.
func (p Pipeline) Fetch(ctx context.Context) error {
	err := p.requirePortal()
	if err != nil {
		return err
	}
	today := chrono.Today(p.time)
	w := walker.New(p.portal, p.directory, walker.Options{Window: p.opts.Window, MaxPages: p.opts.MaxPages}, p.time, p.base)

	services, err := p.directory.Services(ctx)
	if err != nil {
		return err
	}
	err = p.store.WriteSnapshot(cache.SnapshotServices, services.Raw)
	if err != nil {
		return err
	}
	children, err := p.directory.Children(ctx)
	if err != nil {
		return err
	}
	err = p.store.WriteSnapshot(cache.SnapshotChildren, children.Raw)
	if err != nil {
		return err
	}

	targets, err := p.services(ctx)
	if err != nil {
		return err
	}
	for _, svc := range targets {
		for _, category := range FetchedCategories {
			err := p.fetchCategory(ctx, w, category, svc)
			if err != nil {
				return err
			}
		}
	}
	err = p.fetchCategory(ctx, w, record.Handout, portal.Service{})
	if err != nil {
		return err
	}

	if p.opts.Service != "" {
		p.tel.ReportDebug("checkpoint kept, fetch limited to", p.opts.Service)
		return nil
	}
	return p.advanceCheckpoint(ctx, today)
}

func (p Pipeline) fetchCategory(ctx context.Context, w walker.Walker, category record.Category, svc portal.Service) error {
	n := 0
	for rec, err := range w.Walk(ctx, category, svc.ID) {
		if err != nil {
			return fmt.Errorf("%s of '%s': %w", category, svc.Name, err)
		}
		_, err = p.store.Put(rec, svc.Name)
		if err != nil {
			return err
		}
		n++
	}
	p.tel.ReportCount(report_pipeline_fetched+"."+string(category), int64(n))
	p.tel.ReportDebug("fetched", category, svc.Name, n)
	return nil
}

func (p Pipeline) advanceCheckpoint(ctx context.Context, today chrono.Date) error {
	checkpoint, ok, err := Checkpoint(ctx, p.state)
	if err != nil {
		return err
	}
	if ok && !checkpoint.Before(today) {
		return nil
	}
	if !advancesCheckpoint(p.opts.Window, checkpoint, ok, today) {
		p.tel.ReportDebug("checkpoint kept", checkpoint, p.opts.Window.String())
		return nil
	}
	err = p.state.Set(ctx, CheckpointKey, today.String())
	if err != nil {
		p.tel.ReportBroken(report_pipeline_checkpoint, err)
		return err
	}
	p.tel.ReportDebug("checkpoint advanced", today)
	return nil
}

func (p Pipeline) inWindow(records []record.Record) ([]record.Record, error) {
	var out []record.Record
	for _, rec := range records {
		d, err := rec.DisplayDate()
		if err != nil {
			return nil, err
		}
		if p.opts.Window.Contains(d) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Download fetches the attachments of cached records inside the window.
func (p Pipeline) Download(ctx context.Context) error {
	err := p.requirePortal()
	if err != nil {
		return err
	}
	fetcher := attachments.New(p.portal, p.renderer, p.opts.OutputDir, p.base)

	targets, err := p.services(ctx)
	if err != nil {
		return err
	}
	for _, svc := range targets {
		records, err := p.store.GetAll(record.Timeline, svc.Name)
		if err != nil {
			return err
		}
		records, err = p.inWindow(records)
		if err != nil {
			return err
		}
		_, err = fetcher.FetchAll(ctx, svc.Name, records)
		if err != nil {
			return err
		}
	}

	handouts, err := p.store.GetAll(record.Handout, "")
	if err != nil {
		return err
	}
	handouts, err = p.inWindow(handouts)
	if err != nil {
		return err
	}
	for _, rec := range handouts {
		_, err := fetcher.FetchHandout(ctx, rec)
		if err != nil {
			return err
		}
	}
	return nil
}

// cachedServices lists the services found in the cache, so rendering works offline.
func (p Pipeline) cachedServices() ([]string, error) {
	names, err := p.store.Services()
	if err != nil {
		return nil, err
	}
	if p.opts.Service == "" {
		return names, nil
	}
	services := make([]portal.Service, len(names))
	for i, name := range names {
		services[i] = portal.Service{ID: name, Name: name}
	}
	svc, err := portal.MatchService(services, p.opts.Service, p.tel)
	if err != nil {
		return nil, err
	}
	return []string{svc.Name}, nil
}

// Render compiles the month documents and vitals of every cached service, rebuilds
// the index and runs the post build hook.
func (p Pipeline) Render(ctx context.Context) error {
	compiler := notebook.NewCompiler(p.store, p.renderer, notebook.Options{
		OutputDir: p.opts.OutputDir,
		Window:    p.opts.Window,
		Children:  p.opts.Children,
	}, p.base)

	services, err := p.cachedServices()
	if err != nil {
		return err
	}
	for _, service := range services {
		_, err := compiler.Compile(service)
		if err != nil {
			return err
		}
		_, err = compiler.ExportVitals(service)
		if err != nil {
			return err
		}
	}
	err = notebook.RebuildIndex(p.opts.OutputDir)
	if err != nil {
		return err
	}
	return notebook.RunHook(ctx, p.opts.PostBuild, p.opts.OutputDir, p.base)
}
