// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against embedded schemas.
//
// The flow is the same for every caller: compile the schema, compile the
// user data, unify both at a root definition, validate and decode.
//
//	//go:embed config_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[map[string]any](schema, data, "#Config",
//	    cueutil.WithFilename("rc.config.cue"), cueutil.WithConcrete(false))
package cueutil
