// Package recipe loads build recipes.
//
// A recipe is a YAML file (conventionally cruxgate.yaml) that declares
// everything a gated build needs: the base image, the dependency manifest,
// the source tree, the installer and verification commands, and the
// network port and entrypoint of the resulting image. Files are validated
// against an embedded JSON schema before decoding, and omitted fields take
// defaults that describe a Python web service:
//
//	name: gif-frames
//	base: python:3.11-slim
//	manifest: requirements.txt
//	port: 5000
//	entrypoint: ["python", "app.py"]
//	verify:
//	  minCoverage: 80
//
// Relative paths in a recipe resolve against the directory containing it.
package recipe
