package report

import (
	"encoding/xml"
	"fmt"
	"io"
)

type junitCase struct {
	Name      string    `xml:"name,attr"`
	ClassName string    `xml:"classname,attr"`
	Failure   *struct{} `xml:"failure"`
	Error     *struct{} `xml:"error"`
	Skipped   *struct{} `xml:"skipped"`
}

type junitSuite struct {
	Suites []junitSuite `xml:"testsuite"`
	Cases  []junitCase  `xml:"testcase"`
}

// Parses a JUnit XML report into unit counts.
//
// Both a <testsuites> root and a bare <testsuite> root are accepted, and
// nested suites are walked. Counts are derived from the test cases rather
// than the suite attributes, which some producers omit.
func ParseJUnit(r io.Reader) (*Tests, error) {
	var root struct {
		XMLName xml.Name
		junitSuite
	}
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJUnit, err)
	}

	switch root.XMLName.Local {
	case "testsuites", "testsuite":
	default:
		return nil, fmt.Errorf("%w: unexpected root element <%s>", ErrMalformedJUnit, root.XMLName.Local)
	}

	t := &Tests{}
	t.add(root.junitSuite)
	return t, nil
}

func (t *Tests) add(s junitSuite) {
	for _, c := range s.Cases {
		t.Total++
		switch {
		case c.Failure != nil:
			t.Failed++
			t.Failing = append(t.Failing, c.id())
		case c.Error != nil:
			t.Errors++
			t.Failing = append(t.Failing, c.id())
		case c.Skipped != nil:
			t.Skipped++
		default:
			t.Passed++
		}
	}
	for _, child := range s.Suites {
		t.add(child)
	}
}

func (c junitCase) id() string {
	if c.ClassName == "" {
		return c.Name
	}
	return c.ClassName + "::" + c.Name
}
