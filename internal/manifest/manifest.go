package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Matches a requirement line: name, optional extras, remainder.
var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*(.*)$`)

// Operators a constraint may start with. Longer operators come first so
// prefix matching is unambiguous.
var constraintPrefixes = []string{"===", "==", ">=", "<=", "!=", "~=", ">", "<", ";", "@"}

// Runs of separators that are equivalent in distribution names.
var separatorRun = regexp.MustCompile(`[-_.]+`)

// A single entry of a dependency manifest.
type Requirement struct {
	Name       string // Distribution name as written.
	Extras     string // Extras including brackets (e.g., "[gevent]"), or empty.
	Constraint string // Version specifier and/or marker (e.g., ">=2.0"), or empty.
	Line       int    // 1-based line number in the manifest file.
}

// Returns the requirement in installer syntax (e.g., "flask[async]>=2.0").
func (r Requirement) String() string {
	return r.Name + r.Extras + r.Constraint
}

// Returns the canonical form of the distribution name.
//
// Names compare case-insensitively with runs of "-", "_" and "." treated as
// a single "-".
func (r Requirement) Canonical() string {
	return canonicalName(r.Name)
}

// An ordered, immutable list of requirements.
type Manifest struct {
	Path         string        // File the manifest was read from, if any.
	Requirements []Requirement // Entries in declaration order.
}

// Returns the number of requirements.
func (m *Manifest) Len() int {
	return len(m.Requirements)
}

// Reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path

	return m, nil
}

// Parses a manifest from r.
//
// Entries are returned in declaration order. A name that appears twice is
// an error, as is any line that does not describe exactly one installable
// unit.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		req, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidManifest, lineNo, err)
		}
		req.Line = lineNo

		canonical := req.Canonical()
		if prev, dup := seen[canonical]; dup {
			return nil, fmt.Errorf("%w: line %d: %q already declared on line %d", ErrInvalidManifest, lineNo, req.Name, prev)
		}
		seen[canonical] = lineNo

		m.Requirements = append(m.Requirements, req)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	return m, nil
}

// Parses a single non-empty, comment-free line.
func parseLine(line string) (Requirement, error) {
	if strings.HasPrefix(line, "-") {
		return Requirement{}, fmt.Errorf("option lines are not supported: %q", line)
	}

	match := requirementPattern.FindStringSubmatch(line)
	if match == nil {
		return Requirement{}, fmt.Errorf("malformed requirement %q", line)
	}

	constraint := strings.TrimSpace(match[3])
	if constraint != "" && !hasConstraintPrefix(constraint) {
		return Requirement{}, fmt.Errorf("malformed constraint %q for %q", constraint, match[1])
	}

	return Requirement{
		Name:       match[1],
		Extras:     strings.ReplaceAll(match[2], " ", ""),
		Constraint: constraint,
	}, nil
}

// Removes a trailing comment and surrounding whitespace.
//
// A "#" starts a comment at the beginning of a line or after whitespace.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

func hasConstraintPrefix(s string) bool {
	for _, p := range constraintPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func canonicalName(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(name), "-")
}
