package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tinyvillage/villagehub/internal/domain/item"
	"github.com/tinyvillage/villagehub/internal/domain/session"
	"github.com/tinyvillage/villagehub/internal/fakehub"
	"github.com/tinyvillage/villagehub/internal/service"
)

// resetFlags restores every flag of c and its subcommands to its default,
// since command globals survive between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type cliEnv struct {
	hub     *fakehub.Server
	session string
}

// newCLIEnv points the CLI at a fresh fake hub and a temporary session file.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	hub := fakehub.New()
	ts := httptest.NewServer(hub.Handler())
	t.Cleanup(ts.Close)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VILLAGEHUB_API_BASE_URL", ts.URL+"/api")
	return &cliEnv{hub: hub, session: filepath.Join(home, "session.json")}
}

// run executes the root command with args and stdin and returns stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--session", e.session}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := e.run(t, stdin, args...)
	if err != nil {
		t.Fatalf("villagehub %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"login", "logout", "register", "status", "items", "account", "reset", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s command not registered with rootCmd", name)
		}
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{"session expired", &session.SessionExpiredError{Cause: errors.New("HTTP 500")}, exitSessionExpired, "session expired, please log in again"},
		{"not logged in", session.ErrNotLoggedIn, exitError, "not logged in"},
		{"other", errors.New("boom"), exitError, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if code := reportError(&buf, tt.err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(buf.String(), tt.wantText) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.wantText)
			}
		})
	}
}

func TestLoginStatusLogout(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")

	out := env.mustRun(t, "hunter2pass\n", "login", "-u", "alice", "--password-stdin")
	if !strings.Contains(out, "Logged in as alice") {
		t.Errorf("login output = %q", out)
	}
	if _, err := os.Stat(env.session); err != nil {
		t.Fatalf("session file not written: %v", err)
	}

	out = env.mustRun(t, "", "status", "-o", "json")
	var st service.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status json: %v\n%s", err, out)
	}
	if !st.Authenticated || st.User == nil || st.User.Username != "alice" || st.ExpiresAt == nil {
		t.Errorf("status = %+v", st)
	}

	env.mustRun(t, "", "logout")
	out = env.mustRun(t, "", "status")
	if !strings.Contains(out, "Not logged in.") {
		t.Errorf("status after logout = %q", out)
	}
}

func TestLogin_PromptsForUsername(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")

	env.mustRun(t, "alice\nhunter2pass\n", "login")
	if env.hub.LoginCalls() != 1 {
		t.Errorf("LoginCalls() = %d, want 1", env.hub.LoginCalls())
	}
}

func TestRouteGuard(t *testing.T) {
	env := newCLIEnv(t)

	for _, args := range [][]string{
		{"items", "list", "--mine"},
		{"items", "delete", "1"},
		{"account", "address", "--city", "x"},
	} {
		_, err := env.run(t, "", args...)
		if !errors.Is(err, session.ErrNotLoggedIn) {
			t.Errorf("%v: error = %v, want ErrNotLoggedIn", args, err)
		}
	}
	if env.hub.AuthRejects() != 0 {
		t.Errorf("guarded commands reached the server %d times", env.hub.AuthRejects())
	}
}

func TestItemsLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")
	env.mustRun(t, "hunter2pass\n", "login", "-u", "alice", "--password-stdin")

	img := filepath.Join(t.TempDir(), "lamp.jpg")
	if err := os.WriteFile(img, []byte("\xff\xd8\xff\xe0fake"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := env.run(t, "", "items", "create", "--name", "Lamp", "--description", "Warm", "--type", "furniture")
	if err == nil || !strings.Contains(err.Error(), "Please upload an image") {
		t.Errorf("create without image error = %v", err)
	}

	out := env.mustRun(t, "", "items", "create", "--name", "Lamp", "--description", "Warm light",
		"--type", "furniture", "--trade", "--image", img, "-o", "json")
	var created item.Item
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("create json: %v\n%s", err, out)
	}
	if created.Type != item.TypeFurniture || !created.IsForTrade || len(created.Images) != 1 {
		t.Errorf("created = %+v", created)
	}

	env.mustRun(t, "", "items", "update", "1", "--donation")
	got, _ := env.hub.Item(created.ID)
	if !got.IsForDonation || !got.IsForTrade || got.Name != "Lamp" {
		t.Errorf("after update = %+v", got)
	}

	out = env.mustRun(t, "", "items", "list", "--filter", `glob("L*", name)`, "-o", "yaml")
	var listed []item.Item
	if err := yaml.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("list yaml: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0].OwnerUsername != "alice" {
		t.Errorf("listed = %+v", listed)
	}

	out = env.mustRun(t, "", "items", "list", "--mine")
	if !strings.Contains(out, "Lamp") || !strings.Contains(out, "Trade / Donation") {
		t.Errorf("table output = %q", out)
	}

	env.mustRun(t, "", "items", "delete", "1")
	if _, ok := env.hub.Item(created.ID); ok {
		t.Error("item not deleted")
	}
}

func TestSessionExpiredClearsStore(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")
	env.mustRun(t, "hunter2pass\n", "login", "-u", "alice", "--password-stdin")

	env.hub.ExpireAccessTokens()
	env.hub.FailRefresh(http.StatusInternalServerError)

	_, err := env.run(t, "", "items", "list", "--mine")
	if !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("error = %v, want session expired", err)
	}
	var buf bytes.Buffer
	if code := reportError(&buf, err); code != exitSessionExpired {
		t.Errorf("exit code = %d, want %d", code, exitSessionExpired)
	}

	out := env.mustRun(t, "", "status")
	if !strings.Contains(out, "Not logged in.") {
		t.Errorf("status after expiry = %q", out)
	}
}

func TestMetricsFile(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")
	metrics := filepath.Join(t.TempDir(), "villagehub.prom")
	t.Setenv("VILLAGEHUB_TELEMETRY_METRICS_FILE", metrics)

	env.mustRun(t, "hunter2pass\n", "login", "-u", "alice", "--password-stdin")
	env.hub.ExpireAccessTokens()
	env.mustRun(t, "", "items", "list", "--mine")

	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	for _, want := range []string{
		`villagehub_gateway_requests_total{method="GET",status="401"} 1`,
		`villagehub_gateway_retries_total 1`,
		`villagehub_session_refresh_total{result="success"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics file missing %q", want)
		}
	}
}

func TestReset(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")
	env.mustRun(t, "hunter2pass\n", "login", "-u", "alice", "--password-stdin")

	env.mustRun(t, "n\n", "reset")
	if _, err := os.Stat(env.session); err != nil {
		t.Fatalf("declined reset removed the session: %v", err)
	}

	env.mustRun(t, "", "reset", "--force")
	if _, err := os.Stat(env.session); !os.IsNotExist(err) {
		t.Errorf("session file still present: %v", err)
	}
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "", "version")
	if !strings.HasPrefix(out, "villagehub "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestItemsUpdate_UnlistedItem(t *testing.T) {
	env := newCLIEnv(t)
	env.hub.AddUser("alice", "hunter2pass")
	id := env.hub.AddItem("alice", item.Item{Name: "Toolbox", Description: "Red", Type: item.TypeTool})
	env.mustRun(t, "hunter2pass\n", "login", "-u", "alice", "--password-stdin")

	env.mustRun(t, "", "items", "update", strconv.FormatInt(id, 10), "--trade")
	got, _ := env.hub.Item(id)
	if !got.IsForTrade || got.Name != "Toolbox" || got.Description != "Red" || got.Type != item.TypeTool {
		t.Errorf("after update = %+v", got)
	}
}

func TestPrompterPassword(t *testing.T) {
	t.Cleanup(func() { passwordStdin = false })

	pipe := func(t *testing.T, input string) io.Reader {
		t.Helper()
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = r.Close() })
		go func() {
			_, _ = io.WriteString(w, input)
			_ = w.Close()
		}()
		return r
	}

	tests := []struct {
		name      string
		stdinFlag bool
		in        func(t *testing.T) io.Reader
		wantLabel bool
	}{
		{"reader prompts", false, func(*testing.T) io.Reader { return strings.NewReader("s3cret pass\n") }, true},
		{"pipe is not a terminal", false, func(t *testing.T) io.Reader { return pipe(t, "s3cret pass\n") }, true},
		{"password-stdin prints no label", true, func(t *testing.T) io.Reader { return pipe(t, "s3cret pass\r\n") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passwordStdin = tt.stdinFlag
			raw := tt.in(t)
			var out bytes.Buffer
			p := &prompter{raw: raw, in: bufio.NewReader(raw), out: &out}

			got, err := p.password("Password: ")
			if err != nil {
				t.Fatalf("password() error: %v", err)
			}
			if got != "s3cret pass" {
				t.Errorf("password() = %q, want %q", got, "s3cret pass")
			}
			if hasLabel := strings.Contains(out.String(), "Password: "); hasLabel != tt.wantLabel {
				t.Errorf("prompt output = %q, label printed = %v, want %v", out.String(), hasLabel, tt.wantLabel)
			}
		})
	}
}
