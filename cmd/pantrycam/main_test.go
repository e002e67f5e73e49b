package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/pantrycam/config"
	"github.com/pageza/pantrycam/internal/app"
	"github.com/pageza/pantrycam/internal/auth"
	"github.com/pageza/pantrycam/internal/devserver"
	"github.com/pageza/pantrycam/internal/savedview"
	"github.com/pageza/pantrycam/internal/session"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type harness struct {
	t      *testing.T
	apiURL string
	store  session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("CI", "false")
	t.Setenv("PANTRYCAM_ENV", "test")
	t.Setenv("PANTRYCAM_CONFIG", "")
	t.Setenv("PANTRYCAM_API_URL", "")

	db, err := devserver.OpenDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	srv, err := devserver.New(db, "cli-test-secret")
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{t: t, apiURL: ts.URL, store: session.NewMemoryStore()}
}

// run executes one CLI invocation. The session store outlives invocations
// the way the on-disk store does.
func (h *harness) run(args ...string) (string, string, error) {
	c := &cli{
		newApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg, app.WithSessionStore(h.store), app.WithLogger(zerolog.Nop()))
		},
	}
	root := c.rootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--api-url", h.apiURL}, args...))

	err := root.Execute()
	_ = c.stop()
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(args ...string) (string, string) {
	h.t.Helper()
	out, errOut, err := h.run(args...)
	require.NoError(h.t, err, "stderr: %s", errOut)
	return out, errOut
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, png, 0o600))
	return path
}

func TestScanSaveAndManage(t *testing.T) {
	h := newHarness(t)

	out, _ := h.mustRun("register", "--email", "chef@example.com", "--password", "password123", "--name", "Chef")
	assert.Equal(t, "Welcome, Chef! You are logged in.\n", out)

	out, _ = h.mustRun("whoami")
	assert.Equal(t, "Chef <chef@example.com>\n", out)

	img := writeImage(t, "egg_tomato.png")
	out, errOut := h.mustRun("scan", img, "--deselect", "tomato", "--save", "1", "--show", "1")
	assert.Contains(t, out, "  [x] egg\n")
	assert.Contains(t, out, "  [ ] tomato\n")
	assert.Contains(t, out, "  1. Classic Pancakes (American, 20 minutes, easy)\n")
	assert.Contains(t, out, "  2. Shakshuka")
	assert.Contains(t, out, "  1. Whisk the dry ingredients.\n")
	assert.Contains(t, errOut, "[success] Ingredients identified successfully!")
	assert.Contains(t, errOut, "[success] Recipe saved!")

	out, _ = h.mustRun("saved", "list")
	assert.Contains(t, out, "1 recipe saved\n")
	assert.Contains(t, out, "c0a80001-0000-4000-8000-000000000001  Classic Pancakes")

	out, _ = h.mustRun("scan", img)
	assert.Contains(t, out, "Classic Pancakes (American, 20 minutes, easy) [saved]\n")
	assert.Contains(t, out, "Shakshuka (Middle Eastern, 35 minutes, easy)\n")

	out, _ = h.mustRun("recipe", "c0a80001-0000-4000-8000-000000000003")
	assert.True(t, strings.HasPrefix(out, "Shakshuka (Middle Eastern, 35 minutes, easy)\n"))

	_, errOut = h.mustRun("saved", "rm", "c0a80001-0000-4000-8000-000000000001")
	assert.Contains(t, errOut, "[success] Recipe removed from your saved recipes.")

	out, _ = h.mustRun("saved", "list")
	assert.Equal(t, savedview.EmptyMessage+"\n", out)

	out, _ = h.mustRun("logout")
	assert.Equal(t, "Logged out\n", out)
	_, _, err := h.run("whoami")
	assert.ErrorIs(t, err, auth.ErrNotLoggedIn)
}

func TestScanRequiresLogin(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("scan", writeImage(t, "egg.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestScanRejectsBadSelections(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "--email", "sel@example.com", "--password", "password123", "--name", "Sel")
	img := writeImage(t, "egg.png")

	_, _, err := h.run("scan", img, "--deselect", "caviar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot deselect "caviar"`)

	_, _, err = h.run("scan", img, "--deselect", "egg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select at least one ingredient")

	_, _, err = h.run("scan", img, "--save", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipe number 9")
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("login", "--email", "ghost@example.com", "--password", "nope")
	require.Error(t, err)
	assert.Equal(t, "login failed: Invalid email or password", err.Error())
}

func TestToggleSavedAcrossInvocations(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "--email", "toggle@example.com", "--password", "password123", "--name", "Toggle")
	img := writeImage(t, "egg_tomato.png")

	_, errOut := h.mustRun("scan", img, "--deselect", "tomato", "--toggle", "1")
	assert.Contains(t, errOut, "[success] Recipe saved!")

	// a new process starts with an empty mirror and must still see the save
	out, errOut := h.mustRun("scan", img, "--deselect", "tomato", "--toggle", "1")
	assert.Contains(t, out, "  1. Classic Pancakes (American, 20 minutes, easy) [saved]\n")
	assert.Contains(t, errOut, "[success] Recipe removed from your saved recipes.")
	assert.NotContains(t, errOut, "Recipe saved!")

	out, _ = h.mustRun("saved", "list")
	assert.Equal(t, savedview.EmptyMessage+"\n", out)

	const shakshuka = "c0a80001-0000-4000-8000-000000000003"
	out, _ = h.mustRun("saved", "toggle", shakshuka)
	assert.Equal(t, "Saved Shakshuka (Middle Eastern, 35 minutes, easy)\n", out)
	out, _ = h.mustRun("saved", "list")
	assert.Contains(t, out, "1 recipe saved\n")

	out, _ = h.mustRun("saved", "toggle", shakshuka)
	assert.Equal(t, "Removed Shakshuka (Middle Eastern, 35 minutes, easy)\n", out)

	_, _, err := h.run("saved", "toggle", "no-such-recipe")
	require.Error(t, err)
}
