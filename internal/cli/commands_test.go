package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/config"
)

const testManifest = "testdata/cohort.yaml"

// run executes the root command against a database in dir and returns
// stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", filepath.Join(dir, "cohort.db"), "--manifest", testManifest}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func execute(t *testing.T, dir string, args ...string) error {
	t.Helper()
	_, err := run(t, dir, args...)
	return err
}

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decode(t *testing.T, out string, data any) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if data != nil && resp.Data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func create(t *testing.T, dir string, args ...string) CreatedSession {
	t.Helper()
	out, err := run(t, dir, append([]string{"create", "--format", "json"}, args...)...)
	require.NoError(t, err, out)
	var created CreatedSession
	decode(t, out, &created)
	return created
}

func TestConfigs_GoldenJSON(t *testing.T) {
	out, err := run(t, t.TempDir(), "configs", "--format", "json")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "configs", []byte(out))
}

func TestConfigs_Text(t *testing.T) {
	out, err := run(t, t.TempDir(), "configs", "full_study")
	require.NoError(t, err)
	assert.Contains(t, out, "Full Study (full_study)")
	assert.Contains(t, out, "apps: Public Goods (2 rounds), Bargaining")
	assert.Contains(t, out, "participants: multiple of 6")

	_, err = run(t, t.TempDir(), "configs", "nope")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate(t *testing.T) {
	out, err := run(t, t.TempDir(), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "2 session config(s), 2 app(s), 2 room(s)")

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("apps:\n  - name: has space\n    num_rounds: 1\n    page_sequence: []\nsession_configs: []\n"), 0o644))

	out, err = run(t, dir, "validate", bad, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_MANIFEST", resp.Error.Code)

	_, err = run(t, dir, "validate", filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	created := create(t, dir, "full_study", "-n", "6", "--label", "pilot", "--base-url", "http://lab:8000")

	assert.Len(t, created.Code, 8)
	assert.Equal(t, "full_study", created.Config)
	assert.Equal(t, 6, created.Participants)
	assert.NotEmpty(t, created.PreCreateID)
	require.Len(t, created.StartURLs, 6)
	for _, u := range created.StartURLs {
		assert.True(t, strings.HasPrefix(u, "http://lab:8000/InitializeParticipant/"), u)
	}
}

func TestCreate_GroupSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "create", "full_study", "-n", "8", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeGroupSizeMismatch, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "multiple of 6")
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 6, details["divisor"])

	out, err = run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions")
}

func TestCreate_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "create", "missing", "-n", "6")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, dir, "create", "public_goods")
	assert.Error(t, err, "participant count is required without a category")

	_, err = run(t, dir, "create", "public_goods", "-n", "3", "--category", "staff")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, dir, "create", "public_goods", "-n", "3", "--room", "attic")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCreate_DemoAndMarketplace(t *testing.T) {
	t.Setenv("COHORT_SPARE_MULTIPLIER", "2")
	dir := t.TempDir()

	demo := create(t, dir, "full_study", "--category", "demo")
	assert.Equal(t, 6, demo.Participants)

	mturk := create(t, dir, "full_study", "-n", "6", "--marketplace")
	assert.Equal(t, 12, mturk.Participants)
	assert.Equal(t, 6, mturk.Marketplace)

	_, err := run(t, dir, "create", "full_study", "-n", "3", "--marketplace", "--format", "json")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRoutes(t *testing.T) {
	dir := t.TempDir()
	created := create(t, dir, "full_study", "-n", "6")

	out, err := run(t, dir, "routes", created.Code, "--format", "json")
	require.NoError(t, err)
	var all []RouteEntry
	decode(t, out, &all)
	// public_goods: 2 rounds of 3 pages; bargaining: 1 round of 2.
	assert.Len(t, all, 6*8)

	participant := all[0].Participant
	out, err = run(t, dir, "routes", created.Code, "--participant", participant, "--format", "json")
	require.NoError(t, err)
	var one []RouteEntry
	decode(t, out, &one)
	require.Len(t, one, 8)
	for i, e := range one {
		assert.Equal(t, i+1, e.Index)
	}
	assert.Equal(t, "public_goods", one[0].App)
	assert.Equal(t, "Contribute", one[0].Page)
	assert.Equal(t, "/p/"+participant+"/public_goods/Contribute/1/", one[0].URL)
	assert.Equal(t, "bargaining", one[7].App)
	assert.Equal(t, "Respond", one[7].Page)

	_, err = run(t, dir, "routes", created.Code, "--participant", "nobody")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = run(t, dir, "routes", created.Code)
	require.NoError(t, err)
	assert.Contains(t, out, "PARTICIPANT")
	assert.Contains(t, out, "ResultsWaitPage")
}

func TestStatusAndMonitor(t *testing.T) {
	dir := t.TempDir()
	created := create(t, dir, "public_goods", "-n", "3", "--label", "pilot")

	out, err := run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, created.Code)
	assert.Contains(t, out, "pilot")

	out, err = run(t, dir, "status", created.Code, "--format", "json")
	require.NoError(t, err)
	var rows []ParticipantStatus
	decode(t, out, &rows)
	require.Len(t, rows, 3)
	assert.Equal(t, "P1", rows[0].Name)
	assert.Equal(t, "Not visited yet", rows[0].Status)
	assert.Equal(t, "0/6 pages", rows[0].Page)

	out, err = run(t, dir, "monitor", created.Code, "--format", "json")
	require.NoError(t, err)
	var table MonitorResult
	decode(t, out, &table)
	assert.Equal(t, created.Code, table.Session)
	assert.Contains(t, table.Columns, "status")
	require.Len(t, table.Rows, 3)

	out, err = run(t, dir, "monitor", created.Code)
	require.NoError(t, err)
	assert.Contains(t, out, "ID_IN_SESSION")
	assert.Contains(t, out, "Not visited yet")

	_, err = run(t, dir, "status", "missing")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

type pageServer struct {
	*httptest.Server
	mu     sync.Mutex
	posts  []string
	status int
}

func newPageServer(t *testing.T, status int) *pageServer {
	ps := &pageServer{status: status}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.posts = append(ps.posts, r.Method+" "+r.URL.Path)
		ps.mu.Unlock()
		w.WriteHeader(ps.status)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pageServer) count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.posts)
}

func TestAdvance(t *testing.T) {
	dir := t.TempDir()
	srv := newPageServer(t, http.StatusOK)
	created := create(t, dir, "public_goods", "-n", "3")

	out, err := run(t, dir, "advance", created.Code, "--base-url", srv.URL, "--format", "json")
	require.NoError(t, err)
	var first AdvanceResult
	decode(t, out, &first)
	assert.Equal(t, "started_unvisited", first.Outcome)
	assert.Len(t, first.Participants, 3)
	assert.Zero(t, srv.count())

	out, err = run(t, dir, "advance", created.Code, "--base-url", srv.URL, "--format", "json")
	require.NoError(t, err)
	var second AdvanceResult
	decode(t, out, &second)
	assert.Equal(t, "resubmitted_laggards", second.Outcome)
	assert.Equal(t, 1, second.PageIndex)
	assert.Len(t, second.Participants, 3)
	assert.Equal(t, 3, srv.count())
	for _, post := range srv.posts {
		assert.True(t, strings.HasPrefix(post, "POST /p/"), post)
		assert.True(t, strings.HasSuffix(post, "/public_goods/Contribute/1/"), post)
	}
}

func TestAdvance_ServerError(t *testing.T) {
	dir := t.TempDir()
	srv := newPageServer(t, http.StatusInternalServerError)
	created := create(t, dir, "public_goods", "-n", "3")

	require.NoError(t, execute(t, dir, "advance", created.Code, "--base-url", srv.URL))

	out, err := run(t, dir, "advance", created.Code, "--base-url", srv.URL, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAdvancementFailed, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "status 500")
}

func TestArchiveAndDelete(t *testing.T) {
	dir := t.TempDir()
	kept := create(t, dir, "public_goods", "-n", "3")
	archived := create(t, dir, "public_goods", "-n", "3")

	require.NoError(t, execute(t, dir, "archive", archived.Code))

	out, err := run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, kept.Code)
	assert.NotContains(t, out, archived.Code)

	out, err = run(t, dir, "status", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, archived.Code)

	require.NoError(t, execute(t, dir, "archive", "--undo", archived.Code))
	out, err = run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, archived.Code)

	out, err = run(t, dir, "delete", kept.Code, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "ok", decode(t, out, nil).Status)

	_, err = run(t, dir, "routes", kept.Code)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, dir, "delete", kept.Code)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRooms(t *testing.T) {
	t.Setenv("COHORT_SECRET_KEY", "s3cret")
	dir := t.TempDir()
	created := create(t, dir, "public_goods", "-n", "3", "--room", "lab")

	out, err := run(t, dir, "rooms", "--base-url", "http://lab:8000", "--format", "json")
	require.NoError(t, err)
	var rooms []RoomInfo
	decode(t, out, &rooms)
	require.Len(t, rooms, 2)

	assert.Equal(t, "lab", rooms[0].Name)
	assert.Equal(t, created.Code, rooms[0].Session)
	assert.Equal(t, []string{"http://lab:8000/AssignVisitorToRoom/?room=lab"}, rooms[0].Links)

	assert.Equal(t, "booth", rooms[1].Name)
	assert.Empty(t, rooms[1].Session)
	require.Len(t, rooms[1].Links, 2)
	assert.Equal(t,
		"http://lab:8000/AssignVisitorToRoom/?hash="+config.LabelHash("alice", "s3cret")+"&participant_label=alice&room=booth",
		rooms[1].Links[0])

	// Binding another session replaces the first.
	next := create(t, dir, "public_goods", "-n", "3", "--room", "lab")
	out, err = run(t, dir, "rooms", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, "Lab (lab), session "+next.Code)

	_, err = run(t, dir, "rooms", "attic")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
