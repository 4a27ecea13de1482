// Package manifest reads dependency manifests.
//
// A manifest is a requirements-style text file: one requirement per line,
// each a distribution name with optional extras followed by an optional
// version constraint and environment marker. Blank lines and comments are
// ignored. Option lines (includes, index URLs, editable installs) are
// rejected because each entry must name exactly one installable unit.
//
// Example:
//
//	# web
//	flask>=2.0
//	gunicorn[gevent]==22.0.0 ; sys_platform == "linux"
//
// Parsing never touches the network. Whether an entry actually resolves is
// decided later by the installer running inside the build workspace.
package manifest
