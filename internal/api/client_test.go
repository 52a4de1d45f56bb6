package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupsync/internal/api"
	"groupsync/internal/gs"
	"groupsync/internal/testutil"
	"groupsync/internal/testutil/testserver"
)

func newClient(t *testing.T, stack *testserver.Stack, host string) *api.Client {
	t.Helper()

	c := api.New(stack.URL, "", host, nil)
	_, err := c.RegisterClient(context.Background(), 1000)
	require.NoError(t, err)
	_, err = c.RegisterMapping(context.Background(), gs.MappingRequest{
		LocalPath: "/home/" + host + "/notes",
		GroupName: "default",
	})
	require.NoError(t, err)
	return c
}

func TestClient_Registration(t *testing.T) {
	stack := testserver.New(t, 1<<20)
	ctx := context.Background()

	c := api.New(stack.URL, "", "laptop", nil)
	require.NoError(t, c.Ping(ctx))

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", v)

	reg, err := c.RegisterClient(ctx, 500)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, reg.ID, c.ClientID())

	again, err := c.RegisterClient(ctx, 800)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, again.ID)
	assert.Equal(t, int64(800), again.MinPollIntervalMs)

	g, err := c.CreateGroup(ctx, "photos")
	require.NoError(t, err)
	_, err = c.CreateGroup(ctx, "photos")
	assert.ErrorIs(t, err, gs.ErrGroupConflict)

	renamed, err := c.RenameGroup(ctx, g.ID, "pictures")
	require.NoError(t, err)
	assert.Equal(t, "pictures", renamed.Name)

	groups, err := c.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	m, err := c.RegisterMapping(ctx, gs.MappingRequest{LocalPath: "/data/pics", GroupName: "pictures", ExcludedDirs: []string{"cache"}})
	require.NoError(t, err)
	assert.Equal(t, g.ID, m.ServerWatchGroupID)

	resolved, err := c.Resolve(ctx, "/data/pics")
	require.NoError(t, err)
	assert.Equal(t, "pictures", resolved.Name)

	ms, err := c.Mappings(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, []string{"cache"}, ms[0].ExcludedDirs)

	require.NoError(t, c.DeleteMapping(ctx, m.ID))
	_, err = c.Resolve(ctx, "/data/pics")
	assert.ErrorIs(t, err, gs.ErrNotFound)
}

func TestClient_UploadPlanDownload(t *testing.T) {
	stack := testserver.New(t, 1<<20)
	ctx := context.Background()
	a := newClient(t, stack, "alpha")
	b := newClient(t, stack, "beta")

	groups, err := a.ListGroups(ctx)
	require.NoError(t, err)
	groupID := groups[0].ID

	content := strings.Repeat("hello ", 1000)
	ev, err := a.Upload(ctx, gs.UploadRequest{
		GroupID:   groupID,
		Path:      "notes/a.md",
		UTCMillis: 1700000000000,
		Size:      int64(len(content)),
		Checksum:  testutil.SHA256Hex([]byte(content)),
	}, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.Sequence)
	assert.Equal(t, testutil.SHA256Hex([]byte(content)), ev.Checksum)

	plan, err := b.Plan(ctx, groupID, nil)
	require.NoError(t, err)
	require.Len(t, plan.Pulls, 1)
	assert.Equal(t, "notes/a.md", plan.Pulls[0].Path)
	assert.Equal(t, int64(1), plan.Cursor)

	var buf bytes.Buffer
	n, err := b.Download(ctx, groupID, "notes/a.md", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, buf.String())

	_, err = b.SubmitEvent(ctx, gs.CandidateEvent{GroupID: groupID, Path: "notes/a.md", Kind: gs.EventDelete, UTCMillis: 1700000001000})
	require.NoError(t, err)

	plan, err = a.Plan(ctx, groupID, []gs.ManifestEntry{{Path: "notes/a.md", Size: int64(len(content))}})
	require.NoError(t, err)
	assert.Empty(t, plan.Pulls)
	assert.Equal(t, []gs.DeleteLocal{{Path: "notes/a.md"}}, plan.Deletes)

	_, err = a.Download(ctx, groupID, "notes/a.md", &buf)
	assert.ErrorIs(t, err, gs.ErrNotFound)

	hist, err := a.History(ctx, groupID, 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	hist, err = a.PathHistory(ctx, groupID, "notes/a.md")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, gs.EventDelete, hist[1].Kind)
}

func TestClient_ErrorMapping(t *testing.T) {
	stack := testserver.New(t, 64)
	ctx := context.Background()
	c := newClient(t, stack, "alpha")

	groups, err := c.ListGroups(ctx)
	require.NoError(t, err)
	groupID := groups[0].ID

	_, err = c.SubmitEvent(ctx, gs.CandidateEvent{GroupID: groupID, Path: "../escape", Kind: gs.EventDelete})
	assert.ErrorIs(t, err, gs.ErrPathTraversal)

	_, err = c.SubmitEvent(ctx, gs.CandidateEvent{GroupID: 999, Path: "a.md", Kind: gs.EventDelete})
	assert.ErrorIs(t, err, gs.ErrUnknownGroup)

	big := strings.Repeat("x", 65)
	_, err = c.Upload(ctx, gs.UploadRequest{GroupID: groupID, Path: "big.bin", Size: 65}, strings.NewReader(big))
	assert.ErrorIs(t, err, api.ErrTooLarge)

	_, err = c.Upload(ctx, gs.UploadRequest{GroupID: groupID, Path: "short.txt", Size: 10}, strings.NewReader("abc"))
	assert.ErrorIs(t, err, gs.ErrTransferIncomplete)

	unknown := api.New(stack.URL, "ghost", "ghost", nil)
	_, err = unknown.Plan(ctx, groupID, nil)
	assert.ErrorIs(t, err, gs.ErrUnknownGroup)
}

func TestClient_NetworkErrors(t *testing.T) {
	ctx := context.Background()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()

	c := api.New(broken.URL, "c1", "host", nil)
	_, err := c.ListGroups(ctx)
	assert.ErrorIs(t, err, gs.ErrNetwork)

	broken.Close()
	err = c.Ping(ctx)
	assert.ErrorIs(t, err, gs.ErrNetwork)
}

func TestClient_ShortDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("only a few bytes"))
	}))
	defer ts.Close()

	c := api.New(ts.URL, "c1", "host", nil)
	var buf bytes.Buffer
	_, err := c.Download(context.Background(), 1, "a.md", &buf)
	assert.ErrorIs(t, err, gs.ErrNetwork)
}
