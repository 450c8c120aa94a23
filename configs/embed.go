// Package configs embeds the configuration template written by
// `ragdoc config init`.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .ragdoc.yaml template. Every key it
// sets matches the built-in default.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
