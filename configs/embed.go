// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time using Go's //go:embed directive
// so they are available in all distributions (source builds and binary
// releases alike).
//
// Configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/synthesis/config.yaml)
//  3. Project config (.synthesis.yaml)
//  4. Environment variables
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created at ~/.config/synthesis/config.yaml.
// Contains machine-specific settings like the Ollama host and provider keys.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created as .synthesis.yaml in the working directory.
// Contains settings that travel with a deployment: search weights,
// chunking, synthesis toggles, budget.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
