package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"squad-reconciler/internal/domain"
	"squad-reconciler/internal/middleware"
	"squad-reconciler/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
)

type fakeReconciler struct {
	checkErr  error
	repairErr error
	last      *service.CheckResult
	repairFor string
}

func (f *fakeReconciler) Check(ctx context.Context) (*service.CheckResult, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	f.last = &service.CheckResult{
		Report: domain.ReconciliationReport{RunID: "run-1", TotalIssues: 1},
		Issues: []domain.ValidationIssue{{Kind: domain.IssueMissingEventStat, Severity: domain.SeverityCritical, EventID: "E1", PlayerID: "P1"}},
	}
	return f.last, nil
}

func (f *fakeReconciler) RunRepair(ctx context.Context, report domain.ReconciliationReport) (*domain.RepairOutcome, domain.ReconciliationReport, error) {
	f.repairFor = report.RunID
	if f.repairErr != nil {
		return nil, domain.ReconciliationReport{}, f.repairErr
	}
	f.last = &service.CheckResult{Report: domain.ReconciliationReport{RunID: "run-2"}}
	return &domain.RepairOutcome{RunID: report.RunID, Success: true}, f.last.Report, nil
}

func (f *fakeReconciler) LastCheck() (*service.CheckResult, bool) {
	return f.last, f.last != nil
}

type fakeProber struct{ err error }

func (p fakeProber) Probe(ctx context.Context) error { return p.err }

func newTestHTTP(t *testing.T, rec *fakeReconciler, prober Prober) *httptest.Server {
	t.Helper()
	rs := newReconcileServer(rec, zerolog.Nop())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "# metrics") })
	srv := httptest.NewServer(NewHTTPHandler(rs, prober, metrics, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCheckAndRepair(t *testing.T) {
	rec := &fakeReconciler{}
	srv := newTestHTTP(t, rec, fakeProber{})
	ctx := context.Background()

	check := connect.NewClient[emptypb.Empty, CheckResponse](srv.Client(), srv.URL+RunCheckProcedure, JSONClientCodec())
	resp, err := check.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	assert.Equal(t, "run-1", resp.Msg.Report.RunID)
	require.Len(t, resp.Msg.Issues, 1)
	assert.Equal(t, domain.IssueMissingEventStat, resp.Msg.Issues[0].Kind)
	assert.NotEmpty(t, resp.Header().Get(middleware.RequestIDHeader))

	repair := connect.NewClient[RepairRequest, RepairResponse](srv.Client(), srv.URL+RunRepairProcedure, JSONClientCodec())
	rresp, err := repair.CallUnary(ctx, connect.NewRequest(&RepairRequest{RunID: "run-1"}))
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.repairFor)
	assert.True(t, rresp.Msg.Outcome.Success)
	assert.Equal(t, "run-2", rresp.Msg.Report.RunID)
	assert.NotNil(t, rresp.Msg.Issues)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{name: "load error", err: &service.LoadError{Stage: service.StageConnectivity, Err: errors.New("down")}, code: connect.CodeUnavailable},
		{name: "no prior check", err: service.ErrNoPriorCheck, code: connect.CodeFailedPrecondition},
		{name: "other", err: errors.New("boom"), code: connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestHTTP(t, &fakeReconciler{repairErr: tt.err}, fakeProber{})
			repair := connect.NewClient[RepairRequest, RepairResponse](srv.Client(), srv.URL+RunRepairProcedure, JSONClientCodec())

			_, err := repair.CallUnary(context.Background(), connect.NewRequest(&RepairRequest{RunID: "run-1"}))
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestRunRepair_RequiresRunID(t *testing.T) {
	srv := newTestHTTP(t, &fakeReconciler{}, fakeProber{})
	repair := connect.NewClient[RepairRequest, RepairResponse](srv.Client(), srv.URL+RunRepairProcedure, JSONClientCodec())

	_, err := repair.CallUnary(context.Background(), connect.NewRequest(&RepairRequest{}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRunCheck_LoadErrorIsUnavailable(t *testing.T) {
	srv := newTestHTTP(t, &fakeReconciler{checkErr: &service.LoadError{Stage: service.StagePlayers, Err: errors.New("locked")}}, fakeProber{})
	check := connect.NewClient[emptypb.Empty, CheckResponse](srv.Client(), srv.URL+RunCheckProcedure, JSONClientCodec())

	_, err := check.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestHTTP(t, &fakeReconciler{}, fakeProber{})

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestHTTP(t, &fakeReconciler{}, fakeProber{err: errors.New("db gone")})
	resp, err = down.Client().Get(down.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPreflight(t *testing.T) {
	srv := newTestHTTP(t, &fakeReconciler{}, fakeProber{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+RunCheckProcedure, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestJSONCodec(t *testing.T) {
	c := jsonCodec{name: "json"}

	data, err := c.Marshal(&emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	var req RepairRequest
	require.NoError(t, c.Unmarshal([]byte(`{"runId":"abc"}`), &req))
	assert.Equal(t, "abc", req.RunID)

	var empty emptypb.Empty
	assert.NoError(t, c.Unmarshal(nil, &empty))
}
