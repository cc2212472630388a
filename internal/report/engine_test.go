package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

// fakeAPI serves canned payloads. fail maps an operation name to the error it
// should return.
type fakeAPI struct {
	mu        sync.Mutex
	token     string
	team      upstream.Team
	stats     upstream.Statistics
	cases     []upstream.Case
	dets      []upstream.Detection
	assets    map[string]*upstream.Assets
	logos     upstream.PlatformLogos
	tenants   []upstream.Team
	fail      map[string]error
	calls     map[string]int
	filters   []upstream.SearchFilter
	switchTok string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		team:   upstream.Team{ID: "t1", Name: "Acme Corp"},
		assets: map[string]*upstream.Assets{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeAPI) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeAPI) GetProfile(ctx context.Context) (*upstream.Team, error) {
	if err := f.hit("profile"); err != nil {
		return nil, err
	}
	t := f.team
	return &t, nil
}

func (f *fakeAPI) GetStatistics(ctx context.Context, days int) (*upstream.Statistics, error) {
	if err := f.hit("statistics"); err != nil {
		return nil, err
	}
	s := f.stats
	return &s, nil
}

func (f *fakeAPI) GetCaseSeverityCounts(ctx context.Context, days int) ([]upstream.SeverityCount, error) {
	if err := f.hit("severity"); err != nil {
		return nil, err
	}
	return []upstream.SeverityCount{
		{Severity: "HIGH", Count: 3},
		{Severity: "CRITICAL", Count: 1},
		{Severity: "HIGH", Count: 99},
	}, nil
}

func (f *fakeAPI) GetDurationMetric(ctx context.Context, kind upstream.MetricKind, days int) (*upstream.DurationMetric, error) {
	if err := f.hit(string(kind)); err != nil {
		return nil, err
	}
	return &upstream.DurationMetric{Average: upstream.NewNumber(90), Unit: "seconds"}, nil
}

func (f *fakeAPI) GetCases(ctx context.Context, filter upstream.SearchFilter) (*upstream.Cases, error) {
	if err := f.hit("cases"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	return &upstream.Cases{Data: f.cases}, nil
}

func (f *fakeAPI) GetDetections(ctx context.Context, filter upstream.SearchFilter) (*upstream.Detections, error) {
	if err := f.hit("detections"); err != nil {
		return nil, err
	}
	return &upstream.Detections{Data: f.dets}, nil
}

func (f *fakeAPI) GetAssetsForDetection(ctx context.Context, id string) (*upstream.Assets, error) {
	if err := f.hit("assets"); err != nil {
		return nil, err
	}
	if a, ok := f.assets[id]; ok {
		return a, nil
	}
	return &upstream.Assets{}, nil
}

func (f *fakeAPI) SwitchTenant(ctx context.Context, id string) (string, error) {
	if err := f.hit("switch"); err != nil {
		return "", err
	}
	return f.switchTok, nil
}

func (f *fakeAPI) GetPlatformLogos(ctx context.Context) (*upstream.PlatformLogos, error) {
	if err := f.hit("logos"); err != nil {
		return nil, err
	}
	l := f.logos
	return &l, nil
}

func (f *fakeAPI) SearchTenants(ctx context.Context, filter upstream.SearchFilter) (*upstream.TeamSearch, error) {
	if err := f.hit("search"); err != nil {
		return nil, err
	}
	return &upstream.TeamSearch{Data: f.tenants}, nil
}

// factory routes credentials to fakes; unknown credentials get the default.
type factory struct {
	mu      sync.Mutex
	byToken map[string]*fakeAPI
	def     *fakeAPI
	issued  []string
}

func (fc *factory) New(token string) API {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.issued = append(fc.issued, token)
	if f, ok := fc.byToken[token]; ok {
		return f
	}
	return fc.def
}

func testWindow() Window {
	w, _ := ParseWindow("2024-01-01", "2024-01-31", "January 2024")
	return w
}

func newTestEngine(fc *factory) *Engine {
	e := NewEngine(Config{}, fc.New, nil)
	e.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	return e
}

func TestBuildReport(t *testing.T) {
	api := newFakeAPI()
	api.stats = upstream.Statistics{TotalDetections: 40, EscalatedDetections: 4, TruePositiveDetections: 3, BillableEndpoints: 1, BillableUsers: 2}
	api.dets = []upstream.Detection{{ID: "d1"}, {ID: "d2"}}
	api.assets["d1"] = &upstream.Assets{Endpoints: []upstream.Endpoint{{DisplayName: "laptop-1"}}}
	api.assets["d2"] = &upstream.Assets{
		Endpoints: []upstream.Endpoint{{Name: "laptop-1"}, {Name: "srv-2"}},
		Directory: []upstream.DirectoryUser{{DisplayName: "Ann", DirectoryID: "dir"}, {DisplayName: "Ghost"}},
	}
	api.cases = []upstream.Case{{ID: "c1", Title: "<b>Phish</b>", Severity: "LOW"}}

	e := newTestEngine(&factory{def: api})
	rec, err := e.BuildReport(context.Background(), Request{Credential: "k", Window: testWindow()})
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}

	if rec.CompanyName != "Acme Corp" {
		t.Errorf("CompanyName = %q", rec.CompanyName)
	}
	if rec.ReportPeriod != "Last 30 Days" || rec.ReportPeriodLabel != "January 2024" {
		t.Errorf("period = %q / %q", rec.ReportPeriod, rec.ReportPeriodLabel)
	}
	if rec.Branding != nil {
		t.Error("Branding should be nil without a tenant id or overrides")
	}
	if rec.Detections.EscalatedPercent != "10.00%" || rec.VerdictAccuracy.TruePositivesPercent != "75.00%" {
		t.Errorf("percentages = %q, %q", rec.Detections.EscalatedPercent, rec.VerdictAccuracy.TruePositivesPercent)
	}
	if rec.MeanTimes.MTTC != "1.5m" {
		t.Errorf("MTTC = %q", rec.MeanTimes.MTTC)
	}
	if len(rec.TopEndpoints) != 2 || rec.TopEndpoints[0] != (RankedItem{"laptop-1", 2}) {
		t.Errorf("TopEndpoints = %+v", rec.TopEndpoints)
	}
	if len(rec.TopIdentities) != 1 || rec.TopIdentities[0].Name != "Ann" {
		t.Errorf("TopIdentities = %+v", rec.TopIdentities)
	}
	if rec.CasesBySeverity.High != 3 || rec.CasesBySeverity.Critical != 1 {
		t.Errorf("CasesBySeverity = %+v", rec.CasesBySeverity)
	}
	if rec.EscalatedCases[0].Title != "Phish" {
		t.Errorf("case title = %q", rec.EscalatedCases[0].Title)
	}
	if rec.GeneratedAt != "2024-02-01T09:00:00Z" {
		t.Errorf("GeneratedAt = %q", rec.GeneratedAt)
	}

	if api.calls["assets"] != 2 {
		t.Errorf("asset calls = %d, want 2", api.calls["assets"])
	}
	for _, kind := range upstream.MetricKinds {
		if api.calls[string(kind)] != 1 {
			t.Errorf("%s calls = %d, want 1", kind, api.calls[string(kind)])
		}
	}
	if f := api.filters[0]; f.CreatedAt == nil || f.CreatedAt.GTE != "2024-01-01T00:00:00.000Z" || f.OrderDir != "desc" {
		t.Errorf("case filter = %+v", f)
	}
}

func TestBuildReport_TenantSwitch(t *testing.T) {
	provider := newFakeAPI()
	provider.team = upstream.Team{Name: "SOC Partners", SupportEmail: "help@soc.example", LogoURL: "https://soc/logo.png"}
	provider.switchTok = "scoped-token"
	provider.logos = upstream.PlatformLogos{PlatformLogoDark: "https://soc/dark.png"}

	tenant := newFakeAPI()
	tenant.team = upstream.Team{Name: "Client Co"}

	fc := &factory{byToken: map[string]*fakeAPI{"sp-key": provider, "scoped-token": tenant}}
	e := newTestEngine(fc)

	rec, err := e.BuildReport(context.Background(), Request{
		Credential:    "sp-key",
		Window:        testWindow(),
		TenantID:      "client-1",
		Colors:        &Colors{Primary: "#112233"},
		HidePoweredBy: true,
	})
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}

	if rec.CompanyName != "Client Co" {
		t.Errorf("CompanyName = %q, want tenant name", rec.CompanyName)
	}
	b := rec.Branding
	if b == nil {
		t.Fatal("Branding is nil")
	}
	if b.Logo != "https://soc/logo.png" || b.LogoDark != "https://soc/dark.png" {
		t.Errorf("logos = %q / %q", b.Logo, b.LogoDark)
	}
	if b.SPName != "SOC Partners" || b.SupportEmail != "help@soc.example" || b.Theme != "light" || !b.HidePoweredBy {
		t.Errorf("Branding = %+v", b)
	}
	if b.Colors == nil || b.Colors.Primary != "#112233" {
		t.Errorf("Colors = %+v", b.Colors)
	}
	if provider.calls["statistics"] != 0 || tenant.calls["statistics"] != 1 {
		t.Error("statistics should be fetched with the tenant-scoped credential")
	}
}

func TestBuildReport_DefaultLogo(t *testing.T) {
	provider := newFakeAPI()
	provider.switchTok = "scoped"
	fc := &factory{def: provider}

	rec, err := newTestEngine(fc).BuildReport(context.Background(), Request{Credential: "k", Window: testWindow(), TenantID: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Branding.Logo != "/wirespeed.avif" {
		t.Errorf("Logo = %q, want default asset", rec.Branding.Logo)
	}
}

func TestBuildReport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		failOp   string
		failErr  error
		wantKind apperr.Kind
	}{
		{"missing credential", Request{Window: testWindow()}, "", nil, apperr.KindConfiguration},
		{"blank credential", Request{Credential: " \t ", Window: testWindow()}, "", nil, apperr.KindConfiguration},
		{"missing window", Request{Credential: "k"}, "", nil, apperr.KindConfiguration},
		{"rejected credential", Request{Credential: "k", Window: testWindow()}, "statistics", &upstream.APIError{Status: 401, Message: "Unauthorized"}, apperr.KindAuth},
		{"server error", Request{Credential: "k", Window: testWindow()}, "mttv", &upstream.APIError{Status: 503, Message: "unavailable"}, apperr.KindUpstream},
		{"asset failure", Request{Credential: "k", Window: testWindow()}, "assets", errors.New("connection reset"), apperr.KindUpstream},
		{"switch failure", Request{Credential: "k", Window: testWindow(), TenantID: "x"}, "switch", &upstream.APIError{Status: 403, Message: "forbidden"}, apperr.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.dets = []upstream.Detection{{ID: "d1"}}
			api.switchTok = "scoped"
			if tt.failOp != "" {
				api.fail[tt.failOp] = tt.failErr
			}

			_, err := newTestEngine(&factory{def: api}).BuildReport(context.Background(), tt.req)
			if got := apperr.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q (err = %v)", got, tt.wantKind, err)
			}
			if tt.failErr != nil && !errors.Is(err, tt.failErr) {
				t.Errorf("cause %v not preserved in %v", tt.failErr, err)
			}
			if tt.wantKind == apperr.KindConfiguration && len(api.calls) != 0 {
				t.Errorf("upstream calls = %v, want none", api.calls)
			}
		})
	}
}

func TestBuildReport_OwnTenantOverrides(t *testing.T) {
	api := newFakeAPI()
	rec, err := newTestEngine(&factory{def: api}).BuildReport(context.Background(), Request{
		Credential:    "k",
		Window:        testWindow(),
		Colors:        &Colors{Primary: "#ff0000"},
		HidePoweredBy: true,
	})
	if err != nil {
		t.Fatalf("BuildReport() error = %v", err)
	}

	b := rec.Branding
	if b == nil {
		t.Fatal("Branding is nil, overrides dropped")
	}
	if !b.HidePoweredBy || b.Colors == nil || b.Colors.Primary != "#ff0000" {
		t.Errorf("Branding = %+v", b)
	}
	if b.Logo != "/wirespeed.avif" || b.Theme != "light" || b.SPName != "" {
		t.Errorf("Branding = %+v, want default logo and no provider", b)
	}
	if api.calls["switch"] != 0 || api.calls["logos"] != 0 {
		t.Errorf("calls = %v, want no tenant switch", api.calls)
	}
}

func TestBuildReport_ExpiredCredentialNoCall(t *testing.T) {
	api := newFakeAPI()
	e := newTestEngine(&factory{def: api})

	// exp = 2024-01-01T00:00:00Z, before the engine clock.
	expired := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjE3MDQwNjcyMDB9.c2ln"
	_, err := e.BuildReport(context.Background(), Request{Credential: expired, Window: testWindow()})

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeAuthFailed {
		t.Fatalf("error = %v, want AUTH_FAILED", err)
	}
	if ae.Retryable {
		t.Error("auth errors are not retryable")
	}
	if len(api.calls) != 0 {
		t.Errorf("upstream calls = %v, want none", api.calls)
	}
}

func TestBuildReport_Canceled(t *testing.T) {
	api := newFakeAPI()
	api.fail["profile"] = fmt.Errorf("profile: %w", context.DeadlineExceeded)

	_, err := newTestEngine(&factory{def: api}).BuildReport(context.Background(), Request{Credential: "k", Window: testWindow()})
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("kind = %q, want upstream", apperr.KindOf(err))
	}
	if !apperr.IsCanceled(err) {
		t.Error("deadline cause should be preserved")
	}
}

func TestListTenants(t *testing.T) {
	t.Run("service provider", func(t *testing.T) {
		api := newFakeAPI()
		api.team.ServiceProvider = true
		api.tenants = []upstream.Team{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}}

		list, err := newTestEngine(&factory{def: api}).ListTenants(context.Background(), "k")
		if err != nil {
			t.Fatal(err)
		}
		if !list.IsServiceProvider || len(list.Tenants) != 2 {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("single tenant", func(t *testing.T) {
		api := newFakeAPI()
		list, err := newTestEngine(&factory{def: api}).ListTenants(context.Background(), "k")
		if err != nil {
			t.Fatal(err)
		}
		if list.IsServiceProvider || list.Tenants == nil || len(list.Tenants) != 0 {
			t.Errorf("list = %+v", list)
		}
		if api.calls["search"] != 0 {
			t.Error("search should not be called for non service providers")
		}
	})

	t.Run("blank credential", func(t *testing.T) {
		api := newFakeAPI()
		_, err := newTestEngine(&factory{def: api}).ListTenants(context.Background(), "   ")
		if apperr.KindOf(err) != apperr.KindConfiguration {
			t.Errorf("kind = %q, want configuration", apperr.KindOf(err))
		}
		if len(api.calls) != 0 {
			t.Errorf("upstream calls = %v, want none", api.calls)
		}
	})

	t.Run("auth failure", func(t *testing.T) {
		api := newFakeAPI()
		api.fail["profile"] = &upstream.APIError{Status: 401, Message: "Unauthorized"}
		_, err := newTestEngine(&factory{def: api}).ListTenants(context.Background(), "k")
		if apperr.KindOf(err) != apperr.KindAuth {
			t.Errorf("kind = %q, want auth", apperr.KindOf(err))
		}
	})
}
