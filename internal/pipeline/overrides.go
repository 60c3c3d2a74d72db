// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import "github.com/ManuGH/minbar/internal/config"

// Overrides adjusts the effective run configuration for one batch without
// touching the loaded config. Zero values mean "keep the configured value".
type Overrides struct {
	Engine             string   `json:"engine,omitempty"`
	Language           string   `json:"language,omitempty"`
	Model              string   `json:"modelPath,omitempty"`
	OutputFormats      []string `json:"outputFormats,omitempty"`
	WitAiApiKeys       []string `json:"witAiApiKeys,omitempty"`
	EnhanceMode        string   `json:"enhancementMode,omitempty"`
	SourceClass        string   `json:"sourceClass,omitempty"`
	DereverbMode       string   `json:"dereverbMode,omitempty"`
	FailPolicy         string   `json:"failPolicy,omitempty"`
	AttenLimDb         *float64 `json:"attenLimDb,omitempty"`
	SnrSkipThresholdDb *float64 `json:"snrSkipThresholdDb,omitempty"`
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.Engine == "" &&
		o.Language == "" &&
		o.Model == "" &&
		len(o.OutputFormats) == 0 &&
		len(o.WitAiApiKeys) == 0 &&
		o.EnhanceMode == "" &&
		o.SourceClass == "" &&
		o.DereverbMode == "" &&
		o.FailPolicy == "" &&
		o.AttenLimDb == nil &&
		o.SnrSkipThresholdDb == nil
}

// Apply layers the overrides over a copy of cfg and returns it.
func (o Overrides) Apply(cfg config.RunConfig) config.RunConfig {
	if o.Engine != "" {
		cfg.Engine = o.Engine
	}
	if o.Language != "" {
		cfg.Language = o.Language
	}
	if o.Model != "" {
		cfg.ModelPath = o.Model
	}
	if len(o.OutputFormats) > 0 {
		cfg.OutputFormats = config.NormalizeOutputFormats(o.OutputFormats)
	}
	if len(o.WitAiApiKeys) > 0 {
		cfg.WitAiApiKeys = o.WitAiApiKeys
	}
	if o.EnhanceMode != "" {
		cfg.Enhancement.Mode = o.EnhanceMode
	}
	if o.SourceClass != "" {
		cfg.Enhancement.SourceClass = o.SourceClass
	}
	if o.DereverbMode != "" {
		cfg.Enhancement.DereverbMode = o.DereverbMode
	}
	if o.FailPolicy != "" {
		cfg.Enhancement.FailPolicy = o.FailPolicy
	}
	if o.AttenLimDb != nil {
		cfg.Enhancement.AttenLimDb = *o.AttenLimDb
	}
	if o.SnrSkipThresholdDb != nil {
		cfg.Enhancement.SnrSkipThresholdDb = *o.SnrSkipThresholdDb
	}
	return cfg
}
