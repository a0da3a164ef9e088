package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a replication test: a set of replicas sharing one
// manually delivered bus and one fake clock, a sequence of steps, and
// assertions over the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas are the processes taking part. Each one's origin is its
	// name and its generated identity is Player_<seed>.
	Replicas []ReplicaSpec `yaml:"replicas"`

	// Steps run in order. Intents apply locally at once; frames stay on
	// the bus until a settle or advance step delivers them.
	Steps []Step `yaml:"steps"`

	// Assertions validate the state after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// ReplicaSpec declares one replica.
type ReplicaSpec struct {
	Name string `yaml:"name"`
	Seed int    `yaml:"seed"`

	// Deferred replicas join only when a start step names them.
	Deferred bool `yaml:"deferred,omitempty"`

	// Posts are written to the replica's store before it starts.
	Posts []SeedPost `yaml:"posts,omitempty"`

	// Blocklist enables content moderation with these terms.
	Blocklist []string `yaml:"blocklist,omitempty"`
}

// SeedPost is a persisted post used to pre-populate a store.
type SeedPost struct {
	ID      string     `yaml:"id"`
	Author  string     `yaml:"author"`
	Content string     `yaml:"content"`
	Replies []SeedPost `yaml:"replies,omitempty"`
}

// Step is one scenario action. Which fields apply depends on Action.
type Step struct {
	Action  string `yaml:"action"`
	Replica string `yaml:"replica,omitempty"`

	Content string     `yaml:"content,omitempty"`
	Media   *MediaSpec `yaml:"media,omitempty"`
	Post    string     `yaml:"post,omitempty"`
	Parent  string     `yaml:"parent,omitempty"`
	To      string     `yaml:"to,omitempty"`
	Handle  string     `yaml:"handle,omitempty"`

	// Duration is a time.ParseDuration string used by advance.
	Duration string `yaml:"duration,omitempty"`

	// Reverse makes redeliver replay captured frames newest first.
	Reverse bool `yaml:"reverse,omitempty"`

	// Error, when set, is a substring the step's error must contain.
	Error string `yaml:"error,omitempty"`
}

// MediaSpec is an attachment on a post or reply step.
type MediaSpec struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
}

// Step actions.
const (
	ActPost      = "post"
	ActReply     = "reply"
	ActDelete    = "delete"
	ActLike      = "like"
	ActShare     = "share"
	ActView      = "view"
	ActWatch     = "watch"
	ActDM        = "dm"
	ActFollow    = "follow"
	ActRename    = "rename"
	ActBio       = "bio"
	ActAdvance   = "advance"
	ActSettle    = "settle"
	ActStart     = "start"
	ActStop      = "stop"
	ActRedeliver = "redeliver"
)

// Assertion validates final state. Which fields apply depends on Type.
type Assertion struct {
	Type    string `yaml:"type"`
	Replica string `yaml:"replica,omitempty"`

	Post   string `yaml:"post,omitempty"`
	Handle string `yaml:"handle,omitempty"`
	Kind   string `yaml:"kind,omitempty"`
	Expect string `yaml:"expect,omitempty"`

	IDs       []string `yaml:"ids,omitempty"`
	Followers []string `yaml:"followers,omitempty"`
	Following []string `yaml:"following,omitempty"`

	Count   *int    `yaml:"count,omitempty"`
	Exists  *bool   `yaml:"exists,omitempty"`
	Likes   *int    `yaml:"likes,omitempty"`
	Shares  *int    `yaml:"shares,omitempty"`
	Views   *int    `yaml:"views,omitempty"`
	Replies *int    `yaml:"replies,omitempty"`
	Content *string `yaml:"content,omitempty"`
	Bio     *string `yaml:"bio,omitempty"`
}

// Assertion types.
const (
	AssertState         = "state"
	AssertPosts         = "posts"
	AssertPost          = "post"
	AssertSize          = "size"
	AssertConverged     = "converged"
	AssertInbox         = "inbox"
	AssertNotifications = "notifications"
	AssertOnline        = "online"
	AssertViewers       = "viewers"
	AssertProfile       = "profile"
	AssertMe            = "me"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Replicas))
	for i, r := range s.Replicas {
		if r.Name == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("replicas[%d]: duplicate name %q", i, r.Name)
		}
		if r.Seed <= 0 {
			return fmt.Errorf("replicas[%d]: seed must be positive", i)
		}
		names[r.Name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, names); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, names); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its action.
func validateStep(index int, st *Step, names map[string]bool) error {
	needReplica := func() error {
		if !names[st.Replica] {
			return fmt.Errorf("steps[%d]: unknown replica %q", index, st.Replica)
		}
		return nil
	}
	need := func(field, v string) error {
		if v == "" {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, field, st.Action)
		}
		return nil
	}

	switch st.Action {
	case ActPost, ActBio:
		return needReplica()
	case ActReply:
		if err := needReplica(); err != nil {
			return err
		}
		return need("parent", st.Parent)
	case ActDelete, ActLike, ActShare, ActView, ActWatch:
		if err := needReplica(); err != nil {
			return err
		}
		return need("post", st.Post)
	case ActDM:
		if err := needReplica(); err != nil {
			return err
		}
		return need("to", st.To)
	case ActFollow, ActRename:
		if err := needReplica(); err != nil {
			return err
		}
		return need("handle", st.Handle)
	case ActStart, ActStop:
		return needReplica()
	case ActAdvance:
		if err := need("duration", st.Duration); err != nil {
			return err
		}
		if d, err := time.ParseDuration(st.Duration); err != nil || d <= 0 {
			return fmt.Errorf("steps[%d]: invalid duration %q", index, st.Duration)
		}
		return nil
	case ActSettle, ActRedeliver:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, names map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Type != AssertConverged && !names[a.Replica] {
		return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
	}

	switch a.Type {
	case AssertState:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for state", index)
		}
	case AssertPosts, AssertConverged:
	case AssertPost, AssertViewers:
		if a.Post == "" {
			return fmt.Errorf("assertions[%d]: post is required for %s", index, a.Type)
		}
	case AssertSize, AssertOnline:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
	case AssertInbox, AssertProfile:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for %s", index, a.Type)
		}
	case AssertNotifications:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for notifications", index)
		}
	case AssertMe:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for me", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Type == AssertViewers && a.Count == nil {
		return fmt.Errorf("assertions[%d]: count is required for viewers", index)
	}
	return nil
}
