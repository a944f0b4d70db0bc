package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/model"
)

const testClaimGUID = "41807965-3611-f011-9988-000d3a30044f"

type readQueryInput struct {
	Querytext string `json:"querytext"`
}

type readQueryOutput struct {
	Value []map[string]any `json:"value"`
}

// fakeDataverse is an MCP server answering read_query from canned rows
type fakeDataverse struct {
	mu      sync.Mutex
	queries []string
	fail    bool
}

func (f *fakeDataverse) handle(_ context.Context, _ *mcp.CallToolRequest, in readQueryInput) (*mcp.CallToolResult, readQueryOutput, error) {
	f.mu.Lock()
	f.queries = append(f.queries, in.Querytext)
	fail := f.fail
	f.mu.Unlock()

	if fail {
		return nil, readQueryOutput{}, errors.New("SQL execution failed")
	}

	sql := in.Querytext
	switch {
	case strings.HasPrefix(sql, "SELECT * FROM smvs_serviceline"):
		return nil, readQueryOutput{Value: []map[string]any{
			{
				"smvs_servicelineid":                "line-2",
				"_smvs_claimid_value":               testClaimGUID,
				"smvs_proceduresservicesorsupplies": "G0299",
				"smvs_modifiers":                    "",
				"smvs_charges":                      "150.00",
				"smvs_datesofservice":               "2024-03-02",
				"smvs_placeofservice":               12,
				"smvs_dayorunitvalue":               "1",
				"smvs_daysorunits":                  153940001,
			},
			{
				"smvs_servicelineid":                "line-1",
				"_smvs_claimid_value":               testClaimGUID,
				"smvs_proceduresservicesorsupplies": "T2042",
				"smvs_modifiers":                    "GW:59",
				"smvs_additional_modifiers":         "KX",
				"smvs_charges":                      250.5,
				"smvs_datesofservice":               "2024-03-01",
				"smvs_diagnosispointer":             "1:2",
			},
		}}, nil
	case strings.Contains(sql, "smvs_claimid = '"+testClaimGUID+"'"):
		return nil, readQueryOutput{Value: []map[string]any{claimRow(testClaimGUID)}}, nil
	case strings.HasPrefix(sql, "SELECT TOP 5"):
		return nil, readQueryOutput{Value: []map[string]any{
			claimRow("11111111-1111-1111-1111-111111111111"),
			claimRow("22222222-2222-2222-2222-222222222222"),
		}}, nil
	}
	return nil, readQueryOutput{Value: []map[string]any{}}, nil
}

func claimRow(id string) map[string]any {
	return map[string]any{
		"smvs_claimid":         id,
		"smvs_name":            "CLM-" + id[:4],
		"smvs_claimstatus":     153940006,
		"smvs_claim_type":      916310003,
		"smvs_claimed_amount":  400.5,
		"smvs_recieved_amount": 0,
		"createdon":            "2024-03-05T10:00:00Z",
		"smvs_remark":          "Populate Service Line Failed",
	}
}

func newMCPTransport(t *testing.T, fake *fakeDataverse) *MCPTransport {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "fake-dataverse", Version: "v0.0.1"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_query",
		Description: "Run a SELECT statement",
	}, fake.handle)

	connect := func(ctx context.Context) (*mcp.ClientSession, error) {
		t1, t2 := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, t1, nil); err != nil {
			return nil, err
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
		return client.Connect(ctx, t2, nil)
	}
	tr := NewMCPTransportWith(model.MCPConfig{}, connect, nil)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestMCPTransport_Fetch(t *testing.T) {
	fake := &fakeDataverse{}
	tr := newMCPTransport(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	claim, err := tr.Fetch(ctx, testClaimGUID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if claim.ID != testClaimGUID {
		t.Errorf("ID = %q", claim.ID)
	}
	if claim.Status != model.StatusFailed || claim.Type != model.ClaimTypeHospice {
		t.Errorf("status/type = %v/%q", claim.Status, claim.Type)
	}
	if len(claim.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(claim.Lines))
	}
	first := claim.Lines[0]
	if first.ProcedureCode != "T2042" || first.Number != 1 {
		t.Errorf("lines not ordered by service date: %+v", first)
	}
	if strings.Join(first.Modifiers, ",") != "GW,59,KX" {
		t.Errorf("modifiers = %v", first.Modifiers)
	}
	if len(first.DiagnosisPointers) != 2 {
		t.Errorf("diagnosis pointers = %v", first.DiagnosisPointers)
	}
	if claim.Lines[1].Charge != 150 || claim.Lines[1].UnitKind != model.UnitKindUnits {
		t.Errorf("second line decoded wrong: %+v", claim.Lines[1])
	}
}

func TestMCPTransport_FetchNotFound(t *testing.T) {
	tr := newMCPTransport(t, &fakeDataverse{})
	_, err := tr.Fetch(context.Background(), "99999999-9999-9999-9999-999999999999")
	if !errors.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMCPTransport_QueryTranslatesAndEnriches(t *testing.T) {
	fake := &fakeDataverse{}
	tr := newMCPTransport(t, fake)

	q := model.StructuredQuery{
		Where: model.Predicate{Op: model.OpAnd, Args: []model.Predicate{
			{Op: model.OpEq, Field: "status", Value: "Failed"},
			{Op: model.OpEq, Field: "procedure_code", Value: "T2042"},
		}},
		Window:  model.TimeWindow{From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		Exclude: []string{testClaimGUID},
	}
	claims, err := tr.Query(context.Background(), q, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(claims))
	}
	for _, c := range claims {
		if len(c.Lines) != 2 {
			t.Errorf("claim %s not enriched with lines", c.ID)
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	top := fake.queries[0]
	for _, want := range []string{
		"SELECT TOP 5 * FROM smvs_claim WHERE",
		"smvs_claimstatus = 153940006",
		"smvs_claimid IN (SELECT _smvs_claimid_value FROM smvs_serviceline WHERE smvs_proceduresservicesorsupplies = 'T2042')",
		"createdon >= '2024-02-01T00:00:00Z'",
		"smvs_claimid <> '" + testClaimGUID + "'",
		"ORDER BY createdon DESC",
	} {
		if !strings.Contains(top, want) {
			t.Errorf("query %q missing %q", top, want)
		}
	}
}

func TestMCPTransport_ToolError(t *testing.T) {
	tr := newMCPTransport(t, &fakeDataverse{fail: true})
	_, err := tr.Fetch(context.Background(), testClaimGUID)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, errs.NotFound) {
		t.Error("tool failure must not be reported as NotFound")
	}
}

func TestNewMCPTransport_RequiresTarget(t *testing.T) {
	if _, err := NewMCPTransport(model.MCPConfig{}, nil); err == nil {
		t.Error("expected error without command or endpoint")
	}
}
