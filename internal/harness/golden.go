package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lobbysync/internal/engine"
	"github.com/roach88/lobbysync/internal/feed"
)

// Render writes a deterministic text snapshot of a scenario run: the step
// trace followed by each replica's final state.
func Render(w io.Writer, name string, result *Result) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "scenario: %s\n", name)
	buf.WriteString("trace:\n")
	for _, ev := range result.Trace {
		if ev.Replica != "" {
			fmt.Fprintf(&buf, "  %d. %s %s -> %s\n", ev.Step, ev.Replica, ev.Action, ev.Outcome)
		} else {
			fmt.Fprintf(&buf, "  %d. %s -> %s\n", ev.Step, ev.Action, ev.Outcome)
		}
	}

	for _, rname := range result.Replicas {
		v, ok := result.Views[rname]
		if !ok {
			fmt.Fprintf(&buf, "\nreplica %s: not started\n", rname)
			continue
		}
		if err := renderReplica(&buf, rname, v, result.Notifications[rname]); err != nil {
			return err
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func renderReplica(buf *bytes.Buffer, name string, v *engine.View, notes []engine.Notification) error {
	fmt.Fprintf(buf, "\nreplica %s: %s %s\n", name, v.Me.Handle, v.State)

	buf.WriteString("posts:\n")
	if len(v.Posts) == 0 {
		buf.WriteString("  (none)\n")
	}
	var tree bytes.Buffer
	if err := feed.WriteTree(&tree, v.Posts); err != nil {
		return err
	}
	indent(buf, tree.String())

	buf.WriteString("messages:\n")
	if len(v.Messages) == 0 {
		buf.WriteString("  (none)\n")
	}
	var log bytes.Buffer
	if err := feed.WriteMessages(&log, v.Messages); err != nil {
		return err
	}
	indent(buf, log.String())

	online := make([]string, 0, len(v.Online))
	for _, rec := range v.Online {
		online = append(online, rec.Profile.Handle+"@"+rec.Origin)
	}
	fmt.Fprintf(buf, "online: %s\n", orNone(online))

	viewers := make([]string, 0, len(v.Viewers))
	for _, id := range slices.Sorted(maps.Keys(v.Viewers)) {
		viewers = append(viewers, fmt.Sprintf("%s=%d", id, v.Viewers[id]))
	}
	fmt.Fprintf(buf, "viewers: %s\n", orNone(viewers))

	following := slices.Clone(v.Me.Following)
	slices.Sort(following)
	followers := slices.Clone(v.Me.Followers)
	slices.Sort(followers)
	fmt.Fprintf(buf, "following: %s\n", orNone(following))
	fmt.Fprintf(buf, "followers: %s\n", orNone(followers))

	buf.WriteString("notifications:\n")
	if len(notes) == 0 {
		buf.WriteString("  (none)\n")
	}
	for _, n := range notes {
		ref := n.PostID
		if n.Kind == engine.NotifyDirectMessage {
			ref = n.MessageID
		}
		fmt.Fprintf(buf, "  - %s from %s [%s]: %s\n", n.Kind, n.From, ref, n.Content)
	}
	return nil
}

func indent(buf *bytes.Buffer, text string) {
	for _, line := range strings.SplitAfter(text, "\n") {
		if line != "" {
			buf.WriteString("  ")
			buf.WriteString(line)
		}
	}
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// RunWithGolden executes a scenario, fails the test on any step or
// assertion error, and compares the rendered run against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	for _, e := range result.Errors {
		t.Error(e)
	}

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	var buf bytes.Buffer
	if err := Render(&buf, scenarioName, result); err != nil {
		t.Fatalf("render %s: %v", scenarioName, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, buf.Bytes())
}
