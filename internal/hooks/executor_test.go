package hooks

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/alfredjeanlab/harvest/internal/model"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
}

func TestExecute(t *testing.T) {
	requireShell(t)
	for _, tc := range []struct {
		name    string
		command string
		env     map[string]string
		want    string
		wantErr bool
	}{
		{name: "Stdout", command: "echo hello", want: "hello"},
		{name: "StderrFallback", command: "echo oops >&2", want: "oops"},
		{name: "Env", command: `echo "$GREETING"`, env: map[string]string{"GREETING": "hi"}, want: "hi"},
		{name: "NonZeroExit", command: "echo bad; exit 3", want: "bad", wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := Execute(context.Background(), tc.command, 5, "", tc.env)
			if (res.Err != nil) != tc.wantErr {
				t.Fatalf("Err = %v, wantErr %v", res.Err, tc.wantErr)
			}
			if res.Output != tc.want {
				t.Errorf("Output = %q, want %q", res.Output, tc.want)
			}
		})
	}
}

func TestExecute_WorkingDirectory(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	res := Execute(context.Background(), "pwd", 5, dir, nil)
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if !strings.HasSuffix(res.Output, dir) {
		t.Errorf("pwd = %q, want %q", res.Output, dir)
	}
}

func TestExecute_Timeout(t *testing.T) {
	requireShell(t)
	res := Execute(context.Background(), "sleep 5", 1, "", nil)
	if res.Err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPostRun(t *testing.T) {
	requireShell(t)
	run := &model.Run{
		ID:             "run-abc",
		Status:         model.RunStatusCompleted,
		OutputPath:     "/tmp/out.tsv",
		RecordsWritten: 12,
		EventsAdmitted: 13,
		Filter:         "track=go",
	}
	res := PostRun(context.Background(), `echo "$HARVEST_RUN_ID $HARVEST_STATUS $HARVEST_OUTPUT $HARVEST_RECORDS $HARVEST_EVENTS $HARVEST_FILTER"`, 5, run)
	if res.Err != nil {
		t.Fatalf("PostRun: %v", res.Err)
	}
	want := "run-abc completed /tmp/out.tsv 12 13 track=go"
	if res.Output != want {
		t.Errorf("Output = %q, want %q", res.Output, want)
	}
}
