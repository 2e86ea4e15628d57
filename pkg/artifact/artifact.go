// Package artifact defines the definition artifact model: a markdown file
// with a typed YAML frontmatter header and a free-form body, stored in one
// of two tiers. Artifacts describe invocable tasks, reusable skills, or
// gateways that route from the primary tier into the library tier.
package artifact

import (
	"sort"
	"strings"
)

// Location identifies the storage tier an artifact lives in.
type Location string

const (
	// LocationPrimary holds artifacts directly invocable by the host runtime.
	LocationPrimary Location = "primary"
	// LocationLibrary holds artifacts reachable only through a gateway.
	LocationLibrary Location = "library"
)

// Kind classifies what an artifact describes.
type Kind string

const (
	// KindTask describes an invocable unit of behavior.
	KindTask Kind = "task"
	// KindSkill describes reusable guidance.
	KindSkill Kind = "skill"
	// KindGateway routes from the primary tier to the library tier.
	KindGateway Kind = "gateway"
)

// ParseKind maps a frontmatter type value to a Kind. Unrecognized values
// fall back to KindSkill; the structural phase flags them separately.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task":
		return KindTask
	case "gateway":
		return KindGateway
	default:
		return KindSkill
	}
}

// PermissionMode controls how the host runtime gates an artifact's actions.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionBypass      PermissionMode = "bypassPermissions"
	PermissionPlan        PermissionMode = "plan"
)

// ValidPermissionMode reports whether s is a recognized permission mode.
// The empty string is valid because the field is optional.
func ValidPermissionMode(s PermissionMode) bool {
	switch s {
	case "", PermissionDefault, PermissionAcceptEdits, PermissionBypass, PermissionPlan:
		return true
	}
	return false
}

// Metadata is the typed frontmatter header of an artifact. Unknown keys are
// collected rather than silently dropped so the structural phase can reject
// them.
type Metadata struct {
	Name           string
	Description    string
	Type           string
	PermissionMode PermissionMode
	Tools          []string
	Skills         []string
	Model          string
	Color          string

	// UnknownKeys lists frontmatter keys that are not part of the schema,
	// in the order they were encountered.
	UnknownKeys []string
}

// Section is one named body section delimited by a level-two heading.
type Section struct {
	Name    string
	Content string
}

// Artifact is a parsed definition artifact. A non-nil ParseErr marks the
// artifact as unparseable: structural phases treat it as an automatic Fail
// and semantic phases skip it.
type Artifact struct {
	Identifier string
	Location   Location
	Kind       Kind
	Header     Metadata
	Body       string
	Sections   []Section
	LineCount  int

	// Path is the file the artifact was loaded from, empty for in-memory
	// artifacts constructed by tests.
	Path string
	// SourceHash is the sha256 of the file bytes at load time, used as a
	// write precondition by the remediation engine.
	SourceHash string
	// RawHeader is the verbatim frontmatter text between the delimiters.
	RawHeader string
	// BlockScalarKeys lists header keys whose values use a YAML folded or
	// literal block scalar. A block-scalar description is a hard structural
	// violation.
	BlockScalarKeys []string

	ParseErr error
}

// Parseable reports whether the artifact survived parsing.
func (a *Artifact) Parseable() bool {
	return a.ParseErr == nil
}

// HasBlockScalar reports whether the named header key was encoded as a
// folded or literal block.
func (a *Artifact) HasBlockScalar(key string) bool {
	for _, k := range a.BlockScalarKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Section returns the named body section, if present.
func (a *Artifact) Section(name string) (Section, bool) {
	for _, s := range a.Sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Section{}, false
}

// Canonical returns a copy of the metadata in canonical form: tools and
// skills sorted lexically and the description collapsed to a single physical
// line with escaped line breaks. Deterministic fixes are expressed as "set
// to canonical form" so applying them twice is a no-op.
func (m Metadata) Canonical() Metadata {
	out := m
	out.Description = SingleLine(m.Description)
	if len(m.Tools) > 0 {
		out.Tools = append([]string(nil), m.Tools...)
		sort.Strings(out.Tools)
	}
	if len(m.Skills) > 0 {
		out.Skills = append([]string(nil), m.Skills...)
		sort.Strings(out.Skills)
	}
	return out
}

// SingleLine collapses a multi-line string into one physical line using
// escaped line breaks.
func SingleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\\n")
}

// SortedCopy returns a lexically sorted copy of values.
func SortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// IsSorted reports whether values are already in canonical sort order.
func IsSorted(values []string) bool {
	return sort.StringsAreSorted(values)
}
