// Package report models the outcome of a verification run.
//
// A [Report] records whether verification PASSED or FAILED, why, how many
// test units ran and failed, and a coverage summary. Reports are assembled
// from the artifacts the verification tool leaves behind: a JUnit XML file
// ([ParseJUnit]) and a coverage.py JSON file ([ParseCoverage]). [Decide]
// applies the pass/fail rule; it is the only place that rule lives.
//
// Every report is rendered twice: once for the terminal ([Render] with
// styling) and once as persisted artifacts ([Write] produces report.json
// and report.txt).
package report
