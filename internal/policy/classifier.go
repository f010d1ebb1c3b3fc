package policy

import (
	"strings"

	"nostr-core/internal/util"
)

// Result is the classification of one message, computed from its current
// kind and tags. It must not be reused after the tags change.
type Result struct {
	EverShareable           bool `json:"ever_shareable"`
	RequiresWarning         bool `json:"requires_warning"`
	ShouldAutoPublishPublic bool `json:"should_auto_publish_public"`
}

// Violation explains why a public publish request was downgraded.
type Violation string

const (
	ViolationNone            Violation = ""
	ViolationNeverShareable  Violation = "never_shareable"
	ViolationRestrictedGroup Violation = "restricted_group"
	ViolationPrivateMarker   Violation = "private_marker"
	ViolationUnknownKind     Violation = "unknown_kind"
)

// Decision is the routing outcome for one message and one user intent.
type Decision struct {
	Result
	Public    bool
	Violation Violation
}

// Classifier evaluates messages against a fixed set of Tables.
type Classifier struct {
	neverShareable   map[int]bool
	privateByDefault map[int]bool
	public           map[int]bool
	groupTags        map[string]bool
	privateTopics    map[string]bool
	privatePrefixes  []string
}

// New builds a classifier. The tables are copied.
func New(t Tables) *Classifier {
	c := &Classifier{
		neverShareable:   intSet(t.NeverShareableKinds),
		privateByDefault: intSet(t.PrivateByDefaultKinds),
		public:           intSet(t.PublicKinds),
		groupTags:        make(map[string]bool, len(t.RestrictedGroupTags)),
		privateTopics:    make(map[string]bool, len(t.PrivateTopics)),
		privatePrefixes:  make([]string, 0, len(t.PrivateIdentifierPrefixes)),
	}
	for _, name := range t.RestrictedGroupTags {
		c.groupTags[name] = true
	}
	for _, topic := range t.PrivateTopics {
		c.privateTopics[strings.ToLower(topic)] = true
	}
	for _, p := range t.PrivateIdentifierPrefixes {
		c.privatePrefixes = append(c.privatePrefixes, strings.ToLower(p))
	}
	return c
}

func intSet(kinds []int) map[int]bool {
	m := make(map[int]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// IsNeverShareable reports whether kind is in the never-shareable set.
func (c *Classifier) IsNeverShareable(kind int) bool {
	return c.neverShareable[kind]
}

// EverShareable reports whether the message may ever leave the private relay.
// It is evaluated before any user intent is consulted.
func (c *Classifier) EverShareable(kind int, tags [][]string) bool {
	if c.IsNeverShareable(kind) {
		return false
	}
	return !c.hasGroupTag(tags)
}

// RequiresShareWarning reports whether the UI must warn before sharing.
func (c *Classifier) RequiresShareWarning(kind int, tags [][]string) bool {
	return c.privateByDefault[kind] || c.hasPrivateMarker(tags)
}

// ShouldPublishToPublic reports whether the message goes to the public relays
// without the user asking. Only allow-listed kinds ever do.
func (c *Classifier) ShouldPublishToPublic(kind int, tags [][]string) bool {
	if !c.EverShareable(kind, tags) {
		return false
	}
	if c.hasPrivateMarker(tags) {
		return false
	}
	return c.public[kind]
}

// Classify computes all three flags at once.
func (c *Classifier) Classify(kind int, tags [][]string) Result {
	return Result{
		EverShareable:           c.EverShareable(kind, tags),
		RequiresWarning:         c.RequiresShareWarning(kind, tags),
		ShouldAutoPublishPublic: c.ShouldPublishToPublic(kind, tags),
	}
}

// Decide combines the classification with the user's intent. The message is
// public when its kind auto-publishes, or when the user asked for it, the kind
// is a known private-by-default kind and nothing marks it private. When intent
// is overridden the Violation says why.
func (c *Classifier) Decide(kind int, tags [][]string, intendedPublic bool) Decision {
	d := Decision{Result: c.Classify(kind, tags)}

	switch {
	case d.ShouldAutoPublishPublic:
		d.Public = true
	case !intendedPublic:
		d.Public = false
	case c.IsNeverShareable(kind):
		d.Violation = ViolationNeverShareable
	case c.hasGroupTag(tags):
		d.Violation = ViolationRestrictedGroup
	case c.hasPrivateMarker(tags):
		d.Violation = ViolationPrivateMarker
	case !c.privateByDefault[kind]:
		d.Violation = ViolationUnknownKind
	default:
		d.Public = true
	}
	return d
}

func (c *Classifier) hasGroupTag(tags [][]string) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && c.groupTags[tag[0]] {
			return true
		}
	}
	return false
}

// hasPrivateMarker checks the topic vocabulary on "t" tags and the identifier
// prefix convention on the "d" tag.
func (c *Classifier) hasPrivateMarker(tags [][]string) bool {
	for _, topic := range util.GetTagValues(tags, "t") {
		if c.privateTopics[strings.ToLower(topic)] {
			return true
		}
	}
	if d := strings.ToLower(util.GetTagValue(tags, "d")); d != "" {
		for _, prefix := range c.privatePrefixes {
			if strings.HasPrefix(d, prefix) {
				return true
			}
		}
	}
	return false
}
