package memgraph

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	apperrors "mission-control/backend/pkg/errors"
)

// Query parameter names of a FilterConfig
const (
	paramLayer      = "layer"
	paramLens       = "lens"
	paramQuery      = "q"
	paramConfidence = "confidence"
	paramTimeRange  = "timeRange"
	paramLastChats  = "lastChats"
	paramConflicts  = "conflicts"
	paramLowProv    = "lowProvenance"
	paramThreeHops  = "threeHops"
	paramDisable    = "disable"
	paramSelected   = "selected"
	paramTopic      = "topic"
)

// ParseLayer validates a layer name
func ParseLayer(s string) (Layer, error) {
	switch l := Layer(s); l {
	case LayerOverview, LayerTopic, LayerForensics:
		return l, nil
	}
	return "", apperrors.NewInvalidInput(paramLayer, "must be overview, topic or forensics")
}

// ParseLens validates a lens name; empty means no lens restriction
func ParseLens(s string) (Lens, error) {
	switch l := Lens(s); l {
	case "", LensTopic, LensEntity, LensDecision, LensFile:
		return l, nil
	}
	return "", apperrors.NewInvalidInput(paramLens, "must be topic, entity, decision or file")
}

// ParseTimeRange validates a time range name
func ParseTimeRange(s string) (TimeRange, error) {
	switch t := TimeRange(s); t {
	case TimeRange7d, TimeRange30d, TimeRange90d, TimeRangeAll:
		return t, nil
	}
	return "", apperrors.NewInvalidInput(paramTimeRange, "must be 7d, 30d, 90d or all")
}

// FilterFromQuery builds a FilterConfig from URL query parameters. Absent
// parameters keep their DefaultFilterConfig value.
func FilterFromQuery(values url.Values) (FilterConfig, error) {
	cfg := DefaultFilterConfig()
	var err error

	if v := values.Get(paramLayer); v != "" {
		if cfg.Layer, err = ParseLayer(v); err != nil {
			return cfg, err
		}
	}
	if values.Has(paramLens) {
		if cfg.Lens, err = ParseLens(values.Get(paramLens)); err != nil {
			return cfg, err
		}
	}
	if v := values.Get(paramTimeRange); v != "" {
		if cfg.TimeRange, err = ParseTimeRange(v); err != nil {
			return cfg, err
		}
	}
	if v := values.Get(paramConfidence); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil || f < 0 || f > 1 {
			return cfg, apperrors.NewInvalidInput(paramConfidence, "must be a number between 0 and 1")
		}
		cfg.ConfidenceThreshold = f
	}
	if v := values.Get(paramLastChats); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 0 {
			return cfg, apperrors.NewInvalidInput(paramLastChats, "must be a non-negative integer")
		}
		cfg.UsedInLastNChats = n
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{paramConflicts, &cfg.ConflictsOnly},
		{paramLowProv, &cfg.LowProvenanceOnly},
		{paramThreeHops, &cfg.ShowThreeHops},
	}
	for _, f := range flags {
		v := values.Get(f.name)
		if v == "" {
			continue
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return cfg, apperrors.NewInvalidInput(f.name, "must be a boolean")
		}
		*f.dst = b
	}

	cfg.Query = values.Get(paramQuery)
	cfg.SelectedNode = values.Get(paramSelected)
	cfg.SelectedTopic = values.Get(paramTopic)

	for _, raw := range values[paramDisable] {
		for _, rel := range strings.Split(raw, ",") {
			if strings.TrimSpace(rel) == "" {
				continue
			}
			rel = NormalizeRelation(rel)
			if cfg.EnabledRelations == nil {
				cfg.EnabledRelations = map[string]bool{}
			}
			cfg.EnabledRelations[rel] = false
		}
	}
	return cfg, nil
}

// Values encodes the config as query parameters FilterFromQuery accepts.
// Pinned ids are not encoded; pins belong to the editor session.
func (c FilterConfig) Values() url.Values {
	v := url.Values{}
	v.Set(paramLayer, string(c.Layer))
	v.Set(paramLens, string(c.Lens))
	v.Set(paramTimeRange, string(c.TimeRange))
	if c.Query != "" {
		v.Set(paramQuery, c.Query)
	}
	if c.ConfidenceThreshold > 0 {
		v.Set(paramConfidence, strconv.FormatFloat(c.ConfidenceThreshold, 'g', -1, 64))
	}
	if c.UsedInLastNChats > 0 {
		v.Set(paramLastChats, strconv.Itoa(c.UsedInLastNChats))
	}
	if c.ConflictsOnly {
		v.Set(paramConflicts, "true")
	}
	if c.LowProvenanceOnly {
		v.Set(paramLowProv, "true")
	}
	if c.ShowThreeHops {
		v.Set(paramThreeHops, "true")
	}
	if c.SelectedNode != "" {
		v.Set(paramSelected, c.SelectedNode)
	}
	if c.SelectedTopic != "" {
		v.Set(paramTopic, c.SelectedTopic)
	}
	var disabled []string
	for rel, on := range c.EnabledRelations {
		if !on {
			disabled = append(disabled, rel)
		}
	}
	if len(disabled) > 0 {
		sort.Strings(disabled)
		v.Set(paramDisable, strings.Join(disabled, ","))
	}
	return v
}
