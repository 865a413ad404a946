package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"squad-reconciler/internal/domain"
	"squad-reconciler/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	ReconciliationServicePath = "/reconcile.v1.ReconciliationService/"

	RunCheckProcedure  = ReconciliationServicePath + "RunCheck"
	RunRepairProcedure = ReconciliationServicePath + "RunRepair"
)

// Reconciler is the engine surface the RPC layer needs.
type Reconciler interface {
	Check(ctx context.Context) (*service.CheckResult, error)
	RunRepair(ctx context.Context, report domain.ReconciliationReport) (*domain.RepairOutcome, domain.ReconciliationReport, error)
	LastCheck() (*service.CheckResult, bool)
}

type CheckResponse struct {
	Report domain.ReconciliationReport   `json:"report"`
	Issues []domain.ValidationIssue      `json:"issues"`
	Checks []domain.CrossValidationResult `json:"checks,omitempty"`
}

type RepairRequest struct {
	RunID string `json:"runId"`
}

type RepairResponse struct {
	Outcome *domain.RepairOutcome       `json:"outcome"`
	Report  domain.ReconciliationReport `json:"report"`
	Issues  []domain.ValidationIssue    `json:"issues"`
}

type ReconcileServer struct {
	engine Reconciler
	logger zerolog.Logger
}

func NewReconcileServer(engine *service.Engine, logger zerolog.Logger) *ReconcileServer {
	return newReconcileServer(engine, logger)
}

func newReconcileServer(engine Reconciler, logger zerolog.Logger) *ReconcileServer {
	return &ReconcileServer{engine: engine, logger: logger}
}

func (s *ReconcileServer) RunCheck(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[CheckResponse], error) {
	logger := s.requestLogger(ctx)
	start := time.Now()

	res, err := s.engine.Check(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("RunCheck failed")
		return nil, toConnectError(err)
	}

	logger.Info().
		Str("run_id", res.Report.RunID).
		Int("issues", res.Report.TotalIssues).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("RunCheck")

	return connect.NewResponse(&CheckResponse{
		Report: res.Report,
		Issues: nonNil(res.Issues),
		Checks: res.Results,
	}), nil
}

func (s *ReconcileServer) RunRepair(ctx context.Context, req *connect.Request[RepairRequest]) (*connect.Response[RepairResponse], error) {
	logger := s.requestLogger(ctx)
	start := time.Now()

	if req.Msg.RunID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("runId is required"))
	}

	outcome, report, err := s.engine.RunRepair(ctx, domain.ReconciliationReport{RunID: req.Msg.RunID})
	if err != nil {
		logger.Error().Err(err).Str("run_id", req.Msg.RunID).Msg("RunRepair failed")
		return nil, toConnectError(err)
	}

	resp := &RepairResponse{Outcome: outcome, Report: report, Issues: []domain.ValidationIssue{}}
	if last, ok := s.engine.LastCheck(); ok && last.Report.RunID == report.RunID {
		resp.Issues = nonNil(last.Issues)
	}

	logger.Info().
		Str("run_id", req.Msg.RunID).
		Str("post_run_id", report.RunID).
		Bool("success", outcome.Success).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("RunRepair")

	return connect.NewResponse(resp), nil
}

// Handler mounts both procedures under ReconciliationServicePath.
func (s *ReconcileServer) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(JSONCodecOptions(), opts...)

	mux := http.NewServeMux()
	mux.Handle(RunCheckProcedure, connect.NewUnaryHandler(RunCheckProcedure, s.RunCheck, opts...))
	mux.Handle(RunRepairProcedure, connect.NewUnaryHandler(RunRepairProcedure, s.RunRepair, opts...))
	return ReconciliationServicePath, mux
}

func (s *ReconcileServer) requestLogger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

func toConnectError(err error) error {
	var loadErr *service.LoadError
	switch {
	case errors.As(err, &loadErr):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, service.ErrNoPriorCheck):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func nonNil(issues []domain.ValidationIssue) []domain.ValidationIssue {
	if issues == nil {
		return []domain.ValidationIssue{}
	}
	return issues
}
