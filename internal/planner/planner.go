package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Larder/internal/catalog"
	"github.com/MikeSquared-Agency/Larder/internal/config"
	"github.com/MikeSquared-Agency/Larder/internal/csp"
	"github.com/MikeSquared-Agency/Larder/internal/hermes"
	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
	"github.com/MikeSquared-Agency/Larder/internal/metrics"
	"github.com/MikeSquared-Agency/Larder/internal/solver"
	"github.com/MikeSquared-Agency/Larder/internal/store"
)

var (
	ErrNoRecipes       = errors.New("no recipes to plan with")
	ErrPlanSettled     = errors.New("plan already settled")
	ErrCatalogDisabled = errors.New("catalog not configured")
	ErrModelTooLarge   = errors.New("plan model too large")
)

// defaultMaxRecipes applies when the configuration sets no recipe cap.
const defaultMaxRecipes = 200

const requestQueueSize = 64

// Request describes one plan to build.
type Request struct {
	Profile mealplan.Profile
	// RecipeIDs restricts the candidate dishes. Empty means every stored
	// recipe.
	RecipeIDs []string
	Source    string
	Solve     bool
}

type SyncResult struct {
	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Rejected int `json:"rejected"`
}

type Service struct {
	store   store.Store
	hermes  hermes.Client
	catalog catalog.Client
	builder *mealplan.Builder
	solver  *solver.Solver
	lexicon mealplan.HeatLexicon
	mode    solver.Mode
	cfg     *config.Config
	logger  *slog.Logger

	requests chan hermes.PlanRequestEvent

	statsMu sync.Mutex
	stats   hermes.StatsEvent

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New wires the planner. h and c may be nil when NATS or the catalogue are
// not configured.
func New(s store.Store, h hermes.Client, c catalog.Client, lexicon mealplan.HeatLexicon, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	mode, err := solver.ParseMode(cfg.Planner.Mode)
	if err != nil {
		return nil, err
	}
	opts := mealplan.Options{
		ExclusiveSlots: cfg.Planner.ExclusiveSlots,
		MaxTableCells:  cfg.Planner.MaxTableCells,
	}
	return &Service{
		store:    s,
		hermes:   h,
		catalog:  c,
		builder:  mealplan.NewBuilder(opts, logger),
		solver:   solver.New(logger),
		lexicon:  lexicon,
		mode:     mode,
		cfg:      cfg,
		logger:   logger,
		requests: make(chan hermes.PlanRequestEvent, requestQueueSize),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start subscribes to plan requests and runs the request workers and the
// stats publisher until Stop is called or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	if s.hermes == nil {
		return nil
	}
	if err := s.hermes.Subscribe(hermes.SubjectPlanRequest, s.enqueue); err != nil {
		return fmt.Errorf("subscribe plan requests: %w", err)
	}

	workers := s.cfg.Planner.Workers
	if workers <= 0 {
		workers = 1
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.requestLoop(ctx)
	}
	if s.cfg.StatsInterval() > 0 {
		s.wg.Add(1)
		go s.statsLoop(ctx)
	}
	s.logger.Info("planner started", "workers", workers, "mode", s.mode.String())
	return nil
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Service) enqueue(_ string, data []byte) {
	var req hermes.PlanRequestEvent
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to decode plan request", "error", err)
		return
	}
	select {
	case s.requests <- req:
	case <-s.stopCh:
	}
}

func (s *Service) requestLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case req := <-s.requests:
			s.handleRequest(ctx, req)
		}
	}
}

func (s *Service) statsLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.StatsInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.hermes.Publish(hermes.SubjectPlannerStats, s.Stats())
		}
	}
}

// handleRequest serves a NATS plan request. Requests that cannot be built
// are still recorded as failed plans so the caller sees an outcome.
func (s *Service) handleRequest(ctx context.Context, req hermes.PlanRequestEvent) {
	source := req.Source
	if source == "" {
		source = "nats"
	}
	plan, err := s.CreatePlan(ctx, Request{
		Profile:   req.Profile,
		RecipeIDs: req.RecipeIDs,
		Source:    source,
		Solve:     true,
	})
	if err == nil {
		s.logger.Info("plan request served", "plan_id", plan.ID, "status", plan.Status)
		return
	}

	s.logger.Warn("plan request rejected", "source", source, "error", err)
	failed := &store.Plan{
		Status:    store.PlanStatusFailed,
		Source:    source,
		Profile:   req.Profile,
		RecipeIDs: req.RecipeIDs,
		Error:     err.Error(),
	}
	if cerr := s.store.CreatePlan(ctx, failed); cerr != nil {
		s.logger.Error("failed to record rejected plan", "error", cerr)
		return
	}
	s.finish(failed)
}

// Stats returns plan outcome counts since start.
func (s *Service) Stats() hermes.StatsEvent {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	st := s.stats
	st.Timestamp = time.Now().UTC()
	return st
}

// CreatePlan loads the candidate recipes, builds the model and persists a
// plan record. With req.Solve the model is searched before returning.
// Input errors are returned without persisting anything.
func (s *Service) CreatePlan(ctx context.Context, req Request) (*store.Plan, error) {
	if err := req.Profile.Validate(); err != nil {
		return nil, err
	}
	recipes, err := s.loadRecipes(ctx, req.RecipeIDs)
	if err != nil {
		return nil, err
	}

	model, err := s.build(recipes, req.Profile)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(recipes))
	for i, r := range recipes {
		ids[i] = r.ID
	}
	plan := &store.Plan{
		Status:    store.PlanStatusBuilt,
		Source:    req.Source,
		Profile:   req.Profile,
		RecipeIDs: ids,
		Model:     model.Problem.Stats(),
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	s.count(store.PlanStatusBuilt)
	s.logger.Info("plan built",
		"plan_id", plan.ID,
		"source", plan.Source,
		"recipes", len(recipes),
		"variables", plan.Model.Variables,
		"table_cells", plan.Model.TableCells,
	)
	if s.hermes != nil {
		_ = s.hermes.Publish(hermes.SubjectPlanBuilt(plan.ID.String()), hermes.PlanBuiltEvent{
			PlanID: plan.ID.String(),
			Model:  plan.Model,
		})
	}

	if !req.Solve {
		return plan, nil
	}
	if err := s.solve(ctx, plan, model); err != nil {
		return nil, err
	}
	return plan, nil
}

// SolvePlan searches a plan that was built but not yet settled. Failed
// plans may be retried.
func (s *Service) SolvePlan(ctx context.Context, id uuid.UUID) (*store.Plan, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status == store.PlanStatusSolved || plan.Status == store.PlanStatusInfeasible {
		return plan, fmt.Errorf("%w: %s", ErrPlanSettled, plan.Status)
	}
	recipes, err := s.store.GetRecipes(ctx, plan.RecipeIDs)
	if err != nil {
		return nil, fmt.Errorf("load plan recipes: %w", err)
	}
	model, err := s.build(recipes, plan.Profile)
	if err != nil {
		return nil, err
	}
	plan.Error = ""
	if err := s.solve(ctx, plan, model); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) loadRecipes(ctx context.Context, ids []string) ([]mealplan.Recipe, error) {
	var (
		recipes []mealplan.Recipe
		err     error
	)
	limit := s.cfg.Planner.MaxRecipes
	if limit <= 0 {
		limit = defaultMaxRecipes
	}
	if len(ids) > limit {
		return nil, fmt.Errorf("%w: %d recipes requested, at most %d allowed", ErrModelTooLarge, len(ids), limit)
	}
	if len(ids) > 0 {
		recipes, err = s.store.GetRecipes(ctx, ids)
	} else {
		recipes, err = s.store.ListRecipes(ctx, store.RecipeFilter{Limit: limit})
	}
	if err != nil {
		return nil, fmt.Errorf("load recipes: %w", err)
	}
	if len(recipes) == 0 {
		return nil, ErrNoRecipes
	}
	return recipes, nil
}

func (s *Service) build(recipes []mealplan.Recipe, profile mealplan.Profile) (*mealplan.Model, error) {
	start := time.Now()
	model, err := s.builder.Build(recipes, profile, s.lexicon)
	if errors.Is(err, csp.ErrTooLarge) {
		return nil, fmt.Errorf("%w: %w", ErrModelTooLarge, err)
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordModelBuild(time.Since(start), model.Problem.Stats())
	return model, nil
}

// solve runs the search under the configured timeout and node budget and
// records the outcome on plan. Only a failure to persist is returned.
func (s *Service) solve(ctx context.Context, plan *store.Plan, model *mealplan.Model) error {
	metrics.TrackInFlight(true)
	defer metrics.TrackInFlight(false)

	sctx := ctx
	if timeout := s.cfg.SolveTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.solver.Solve(sctx, model.Problem, solver.Options{
		Mode:     s.mode,
		MaxNodes: s.cfg.Planner.MaxNodes,
	})
	elapsed := time.Since(start)
	if res != nil {
		plan.Nodes = res.Nodes
		plan.Exhausted = res.Exhausted
	}

	switch {
	case err == nil:
		meals := model.Extract(res.Assignment)
		if verr := model.Verify(meals); verr != nil {
			plan.Status = store.PlanStatusFailed
			plan.Error = verr.Error()
			metrics.RecordSolve("error", elapsed, res.Nodes)
			s.logger.Error("solver returned an invalid plan", "plan_id", plan.ID, "error", verr)
			break
		}
		w := res.Weight
		now := time.Now().UTC()
		plan.Status = store.PlanStatusSolved
		plan.Meals = meals
		plan.Weight = &w
		plan.SolvedAt = &now
		metrics.RecordSolve("solved", elapsed, res.Nodes)
	case errors.Is(err, solver.ErrNoSolution):
		plan.Status = store.PlanStatusInfeasible
		metrics.RecordSolve("infeasible", elapsed, plan.Nodes)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		plan.Status = store.PlanStatusFailed
		plan.Error = "search stopped before any plan was found: " + err.Error()
		metrics.RecordSolve("cancelled", elapsed, plan.Nodes)
	default:
		plan.Status = store.PlanStatusFailed
		plan.Error = err.Error()
		metrics.RecordSolve("error", elapsed, plan.Nodes)
	}

	// The outcome is recorded even when the caller has gone away.
	if uerr := s.store.UpdatePlan(context.WithoutCancel(ctx), plan); uerr != nil {
		return fmt.Errorf("update plan: %w", uerr)
	}
	s.logger.Info("plan settled",
		"plan_id", plan.ID,
		"status", plan.Status,
		"nodes", plan.Nodes,
		"exhausted", plan.Exhausted,
		"duration_ms", elapsed.Milliseconds(),
	)
	s.finish(plan)
	return nil
}

// finish counts a settled plan and announces it.
func (s *Service) finish(plan *store.Plan) {
	s.count(plan.Status)
	metrics.RecordPlan(string(plan.Status), plan.Source)
	if s.hermes == nil {
		return
	}

	id := plan.ID.String()
	switch plan.Status {
	case store.PlanStatusSolved:
		_ = s.hermes.Publish(hermes.SubjectPlanSolved(id), hermes.PlanSolvedEvent{
			PlanID:    id,
			Meals:     plan.Meals,
			Weight:    *plan.Weight,
			Nodes:     plan.Nodes,
			Exhausted: plan.Exhausted,
		})
	case store.PlanStatusInfeasible:
		_ = s.hermes.Publish(hermes.SubjectPlanInfeasible(id), hermes.PlanInfeasibleEvent{
			PlanID:    id,
			Nodes:     plan.Nodes,
			Exhausted: plan.Exhausted,
		})
	case store.PlanStatusFailed:
		_ = s.hermes.Publish(hermes.SubjectPlanFailed(id), hermes.PlanFailedEvent{
			PlanID: id,
			Error:  plan.Error,
		})
	}
}

func (s *Service) count(status store.PlanStatus) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	switch status {
	case store.PlanStatusBuilt:
		s.stats.Built++
	case store.PlanStatusSolved:
		s.stats.Solved++
	case store.PlanStatusInfeasible:
		s.stats.Infeasible++
	case store.PlanStatusFailed:
		s.stats.Failed++
	}
}
