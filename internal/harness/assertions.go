package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/lobbysync/internal/engine"
	"github.com/roach88/lobbysync/internal/feed"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Replica  string       // Replica the assertion was evaluated on
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Replica != "" {
		fmt.Fprintf(&buf, " on %s", e.Replica)
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", ev.Step, ev.Action, ev.Replica, ev.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertConverged {
		return assertConverged(result)
	}

	v, ok := result.Views[a.Replica]
	if !ok || v == nil {
		return fmt.Errorf("replica %s never started", a.Replica)
	}
	fail := func(expected, actual string, args ...any) error {
		return &AssertionError{
			Type:     a.Type,
			Replica:  a.Replica,
			Expected: fmt.Sprintf(expected, args...),
			Actual:   actual,
		}
	}

	switch a.Type {
	case AssertState:
		if got := v.State.String(); got != a.Expect {
			return fail("state %s", got, a.Expect)
		}

	case AssertPosts:
		got := make([]string, 0, len(v.Posts))
		for _, p := range v.Posts {
			got = append(got, p.ID)
		}
		want := a.IDs
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(got, want) {
			return fail("root posts %v", fmt.Sprint(got), want)
		}

	case AssertSize:
		if got := feed.Size(v.Posts); got != *a.Count {
			return fail("%d posts", fmt.Sprint(got), *a.Count)
		}

	case AssertPost:
		return assertPost(v, a, fail)

	case AssertInbox:
		got := len(v.Inbox(a.Handle))
		if a.Count != nil && got != *a.Count {
			return fail("%d messages for %s", fmt.Sprint(got), *a.Count, a.Handle)
		}

	case AssertNotifications:
		got := 0
		for _, n := range result.Notifications[a.Replica] {
			if a.Kind == "" || n.Kind.String() == a.Kind {
				got++
			}
		}
		if got != *a.Count {
			return fail("%d %s notifications", fmt.Sprint(got), *a.Count, orAny(a.Kind))
		}

	case AssertOnline:
		if got := len(v.Online); got != *a.Count {
			return fail("%d online", describeOnline(v), *a.Count)
		}

	case AssertViewers:
		if got := v.Viewers[a.Post]; got != *a.Count {
			return fail("%d viewers on %s", fmt.Sprint(got), *a.Count, a.Post)
		}

	case AssertProfile:
		return assertProfile(v, a, fail)

	case AssertMe:
		if v.Me.Handle != a.Handle {
			return fail("identity %s", v.Me.Handle, a.Handle)
		}
	}
	return nil
}

func assertPost(v *engine.View, a Assertion, fail func(string, string, ...any) error) error {
	p, found := v.Post(a.Post)
	if a.Exists != nil && *a.Exists != found {
		return fail("post %s exists=%t", fmt.Sprintf("exists=%t", found), a.Post, *a.Exists)
	}
	if !found {
		if a.Exists == nil {
			return fail("post %s present", "not found", a.Post)
		}
		return nil
	}

	checks := []struct {
		name string
		want *int
		got  int
	}{
		{"likes", a.Likes, p.Likes},
		{"shares", a.Shares, p.Shares},
		{"views", a.Views, p.Views},
		{"replies", a.Replies, len(p.Replies)},
	}
	for _, c := range checks {
		if c.want != nil && *c.want != c.got {
			return fail("post %s %s=%d", fmt.Sprintf("%s=%d", c.name, c.got), a.Post, c.name, *c.want)
		}
	}
	if a.Content != nil && *a.Content != p.Content {
		return fail("post %s content %q", fmt.Sprintf("%q", p.Content), a.Post, *a.Content)
	}
	return nil
}

func assertProfile(v *engine.View, a Assertion, fail func(string, string, ...any) error) error {
	p, found := v.Profiles[a.Handle]
	if a.Exists != nil && *a.Exists != found {
		return fail("profile %s exists=%t", fmt.Sprintf("exists=%t", found), a.Handle, *a.Exists)
	}
	if !found {
		if a.Exists == nil {
			return fail("profile %s known", "unknown", a.Handle)
		}
		return nil
	}
	if a.Followers != nil && !sameSet(p.Followers, a.Followers) {
		return fail("followers %v", fmt.Sprint(p.Followers), a.Followers)
	}
	if a.Following != nil && !sameSet(p.Following, a.Following) {
		return fail("following %v", fmt.Sprint(p.Following), a.Following)
	}
	if a.Bio != nil && *a.Bio != p.Bio {
		return fail("bio %q", fmt.Sprintf("%q", p.Bio), *a.Bio)
	}
	return nil
}

// assertConverged checks that every started replica holds the same posts
// and messages. Root order is ignored since it reflects arrival order.
func assertConverged(result *Result) error {
	var first, firstPrint string
	for _, name := range result.Replicas {
		v, ok := result.Views[name]
		if !ok {
			continue
		}
		fp := Fingerprint(v)
		if first == "" {
			first, firstPrint = name, fp
			continue
		}
		if fp != firstPrint {
			return &AssertionError{
				Type:     AssertConverged,
				Replica:  name,
				Expected: fmt.Sprintf("same content as %s:\n%s", first, firstPrint),
				Actual:   fp,
			}
		}
	}
	return nil
}

// Fingerprint renders a view's replicated content in a canonical,
// order-insensitive form.
func Fingerprint(v *engine.View) string {
	var lines []string
	var walk func(parent string, posts []feed.Post)
	walk = func(parent string, posts []feed.Post) {
		for _, p := range posts {
			lines = append(lines, fmt.Sprintf("post %s parent=%s author=%s content=%q liked=%v shared=%v viewed=%v",
				p.ID, parent, p.Author.Handle, p.Content,
				sorted(p.LikedBy), sorted(p.SharedBy), sorted(p.ViewedBy)))
			walk(p.ID, p.Replies)
		}
	}
	walk("", v.Posts)
	for _, m := range v.Messages {
		lines = append(lines, fmt.Sprintf("message %s %s->%s %q", m.ID, m.SenderHandle, m.ReceiverHandle, m.Content))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func describeOnline(v *engine.View) string {
	parts := make([]string, 0, len(v.Online))
	for _, rec := range v.Online {
		parts = append(parts, rec.Profile.Handle+"@"+rec.Origin)
	}
	return fmt.Sprintf("%d %v", len(parts), parts)
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

func sameSet(a, b []string) bool {
	return slices.Equal(sorted(a), sorted(b))
}

func orAny(kind string) string {
	if kind == "" {
		return "any"
	}
	return kind
}
