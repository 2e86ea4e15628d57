package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// MaxIdentifierLength bounds artifact identifiers.
const MaxIdentifierLength = 64

var (
	identifierPattern  = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	blockScalarPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*):\s*[>|][+-]?[0-9]*\s*(#.*)?$`)
	sectionPattern     = regexp.MustCompile(`^##\s+(.+?)\s*$`)
)

// headerKeys is the full frontmatter schema in canonical field order.
var headerKeys = []string{"name", "description", "type", "permission-mode", "tools", "skills", "model", "color"}

// ValidIdentifier reports whether name is kebab-cased and within the length
// bound.
func ValidIdentifier(name string) bool {
	if name == "" || len(name) > MaxIdentifierLength {
		return false
	}
	return identifierPattern.MatchString(name)
}

// IdentifierFromPath derives the artifact identifier from its file name.
func IdentifierFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}

// Load reads and parses the artifact at path. Load never returns an error:
// unreadable or malformed files yield an Artifact with ParseErr set so a
// batch run over many artifacts is never aborted by one broken file.
func Load(path string, loc Location) *Artifact {
	identifier := IdentifierFromPath(path)

	content, err := os.ReadFile(path)
	if err != nil {
		return &Artifact{
			Identifier: identifier,
			Location:   loc,
			Kind:       KindSkill,
			Path:       path,
			ParseErr:   errors.Wrap(err, "failed to read artifact file"),
		}
	}

	art := Parse(identifier, content, loc)
	art.Path = path
	return art
}

// Parse parses raw artifact content. Malformed input yields an Artifact with
// ParseErr set rather than an error return.
func Parse(identifier string, content []byte, loc Location) *Artifact {
	art := &Artifact{
		Identifier: identifier,
		Location:   loc,
		Kind:       KindSkill,
	}

	sum := sha256.Sum256(content)
	art.SourceHash = hex.EncodeToString(sum[:])

	raw, ok := splitRawHeader(string(content))
	if !ok {
		art.ParseErr = errors.New("missing frontmatter")
		return art
	}
	art.RawHeader = raw
	art.BlockScalarKeys = scanBlockScalars(raw)

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		art.ParseErr = errors.Wrap(err, "failed to parse markdown")
		return art
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		art.ParseErr = errors.New("missing frontmatter")
		return art
	}

	art.Header = parseHeader(metaData)
	art.Kind = ParseKind(art.Header.Type)
	art.Body = extractBody(string(content))
	art.LineCount = countLines(art.Body)
	art.Sections = parseSections(art.Body)

	if art.Header.Name == "" {
		art.ParseErr = errors.New("name is required in frontmatter")
		return art
	}
	if art.Header.Description == "" {
		art.ParseErr = errors.New("description is required in frontmatter")
		return art
	}

	return art
}

// parseHeader maps raw frontmatter values onto the typed metadata record,
// collecting unknown keys for the structural phase to reject.
func parseHeader(metaData map[string]interface{}) Metadata {
	var m Metadata

	if name, ok := metaData["name"].(string); ok {
		m.Name = name
	}
	if description, ok := metaData["description"].(string); ok {
		m.Description = description
	}
	if typ, ok := metaData["type"].(string); ok {
		m.Type = typ
	}
	if mode, ok := metaData["permission-mode"].(string); ok {
		m.PermissionMode = PermissionMode(mode)
	}
	if tools := metaData["tools"]; tools != nil {
		m.Tools = parseStringArray(tools)
	}
	if skills := metaData["skills"]; skills != nil {
		m.Skills = parseStringArray(skills)
	}
	if model, ok := metaData["model"].(string); ok {
		m.Model = model
	}
	if color, ok := metaData["color"].(string); ok {
		m.Color = color
	}

	known := make(map[string]bool, len(headerKeys))
	for _, k := range headerKeys {
		known[k] = true
	}
	for key := range metaData {
		if !known[key] {
			m.UnknownKeys = append(m.UnknownKeys, key)
		}
	}
	if len(m.UnknownKeys) > 1 {
		// Map iteration order is random; keep reports stable.
		m.UnknownKeys = SortedCopy(m.UnknownKeys)
	}

	return m
}

// parseStringArray handles both YAML arrays and comma-separated strings.
func parseStringArray(field interface{}) []string {
	switch v := field.(type) {
	case []interface{}:
		var result []string
		for _, item := range v {
			if str, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(str); trimmed != "" {
					result = append(result, trimmed)
				}
			}
		}
		return result
	case string:
		if v == "" {
			return nil
		}
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	default:
		return nil
	}
}

// splitRawHeader returns the verbatim frontmatter text between the ---
// delimiters.
func splitRawHeader(content string) (string, bool) {
	if !strings.HasPrefix(content, "---") {
		return "", false
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), true
		}
	}
	return "", false
}

// scanBlockScalars finds top-level header keys whose values use a folded or
// literal block scalar. Some parsers silently degrade those values to a
// sentinel character, so the structural phase must reject them.
func scanBlockScalars(rawHeader string) []string {
	var keys []string
	for _, line := range strings.Split(rawHeader, "\n") {
		if m := blockScalarPattern.FindStringSubmatch(line); m != nil {
			keys = append(keys, m[1])
		}
	}
	return keys
}

// extractBody returns the markdown content after the YAML frontmatter.
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}
	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}

func countLines(body string) int {
	if body == "" {
		return 0
	}
	return len(strings.Split(strings.TrimRight(body, "\n"), "\n"))
}

// parseSections splits the body into named sections on level-two headings.
// Content before the first heading belongs to an unnamed leading section,
// which is omitted.
func parseSections(body string) []Section {
	var sections []Section
	var current *Section

	for _, line := range strings.Split(body, "\n") {
		if m := sectionPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.Content = strings.TrimSpace(current.Content)
				sections = append(sections, *current)
			}
			current = &Section{Name: m[1]}
			continue
		}
		if current != nil {
			current.Content += line + "\n"
		}
	}
	if current != nil {
		current.Content = strings.TrimSpace(current.Content)
		sections = append(sections, *current)
	}

	return sections
}
