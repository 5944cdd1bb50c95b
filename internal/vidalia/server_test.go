package vidalia

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/security-onion-solutions/shallot/internal/so"
)

var errNotScripted = errors.New("not scripted")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type jobRequest struct {
	NodeID string
	Filter so.JobFilter
}

type lookupRequest struct {
	Time string
	ESID string
	NCID string
}

// fakeSIEM scripts the manager responses and records what the
// handlers asked for.
type fakeSIEM struct {
	mu sync.Mutex

	events   []so.Event
	queryErr error
	queries  []so.QueryOptions

	createdJob  *so.Job
	createErr   error
	jobRequests []jobRequest

	jobs   map[int]*so.Job
	jobErr error

	pcapData    []byte
	downloadErr error
	downloads   []int

	lookupErr error
	lookups   []lookupRequest

	cases    []so.Case
	casesErr error
	caseByID map[string]*so.Case
	caseErr  error
	comments map[string][]so.Comment

	commentsErr error

	users      []so.User
	usersErr   error
	usersCalls int

	nodes      []so.GridNode
	nodesErr   error
	restarts   []string
	restartErr error
}

func (f *fakeSIEM) QueryEvents(ctx context.Context, opts so.QueryOptions) (*so.EventsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, opts)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &so.EventsResponse{Events: f.events, TotalEvents: len(f.events)}, nil
}

func (f *fakeSIEM) CreatePCAPJob(ctx context.Context, nodeID string, filter so.JobFilter) (*so.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobRequests = append(f.jobRequests, jobRequest{NodeID: nodeID, Filter: filter})
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createdJob != nil {
		return f.createdJob, nil
	}
	return &so.Job{ID: 1, Type: "pcap", NodeID: nodeID}, nil
}

func (f *fakeSIEM) GetJob(ctx context.Context, id int) (*so.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	if job, ok := f.jobs[id]; ok {
		return job, nil
	}
	return nil, errNotScripted
}

func (f *fakeSIEM) DownloadPCAP(ctx context.Context, jobID int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, jobID)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.pcapData, nil
}

func (f *fakeSIEM) LookupPCAP(ctx context.Context, eventTime, esID, ncID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, lookupRequest{Time: eventTime, ESID: esID, NCID: ncID})
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.pcapData, nil
}

func (f *fakeSIEM) ListCases(ctx context.Context) ([]so.Case, error) {
	if f.casesErr != nil {
		return nil, f.casesErr
	}
	return f.cases, nil
}

func (f *fakeSIEM) GetCase(ctx context.Context, id string) (*so.Case, error) {
	if f.caseErr != nil {
		return nil, f.caseErr
	}
	if c, ok := f.caseByID[id]; ok {
		return c, nil
	}
	return nil, errNotScripted
}

func (f *fakeSIEM) CaseComments(ctx context.Context, caseID string) ([]so.Comment, error) {
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.comments[caseID], nil
}

func (f *fakeSIEM) Users(ctx context.Context) ([]so.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usersCalls++
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return f.users, nil
}

func (f *fakeSIEM) GridNodes(ctx context.Context) ([]so.GridNode, error) {
	if f.nodesErr != nil {
		return nil, f.nodesErr
	}
	return f.nodes, nil
}

func (f *fakeSIEM) RestartGridMember(ctx context.Context, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, memberID)
	return f.restartErr
}

func newTestServer(t *testing.T, siem *fakeSIEM) *httptest.Server {
	t.Helper()
	srv := NewServer(Config{
		SIEM:         siem,
		Logger:       testLogger(),
		AlertsLimit:  100,
		UserCacheTTL: time.Minute,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, json bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if json {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func post(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
