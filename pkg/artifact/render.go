package artifact

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Render serializes the artifact back to its stored file form: a canonical
// frontmatter header followed by the body. The header is emitted in fixed
// field order with the description on a single physical line, so rendering
// is stable under repeated parse/render round-trips.
func Render(header Metadata, body string) ([]byte, error) {
	rendered, err := RenderHeader(header)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(rendered)
	b.WriteString("---\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}

	return []byte(b.String()), nil
}

// RenderHeader emits the frontmatter fields in canonical order. Each field
// is marshaled independently so field ordering never depends on map
// iteration. Unknown keys are not rendered; the structural fix for them is
// removal.
func RenderHeader(header Metadata) (string, error) {
	canonical := header.Canonical()

	var b strings.Builder
	for _, key := range headerKeys {
		var value interface{}
		switch key {
		case "name":
			value = canonical.Name
		case "description":
			value = canonical.Description
		case "type":
			if canonical.Type == "" {
				continue
			}
			value = canonical.Type
		case "permission-mode":
			if canonical.PermissionMode == "" {
				continue
			}
			value = string(canonical.PermissionMode)
		case "tools":
			if len(canonical.Tools) == 0 {
				continue
			}
			value = canonical.Tools
		case "skills":
			if len(canonical.Skills) == 0 {
				continue
			}
			value = canonical.Skills
		case "model":
			if canonical.Model == "" {
				continue
			}
			value = canonical.Model
		case "color":
			if canonical.Color == "" {
				continue
			}
			value = canonical.Color
		}

		encoded, err := yaml.Marshal(map[string]interface{}{key: value})
		if err != nil {
			return "", errors.Wrapf(err, "failed to marshal header field %q", key)
		}
		b.Write(encoded)
	}

	return b.String(), nil
}
