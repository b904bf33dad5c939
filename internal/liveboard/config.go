package liveboard

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMissingLiveboardID = errors.New("liveboard: liveboardId is required")

// RuntimeFilter narrows the data shown on the Liveboard at load time.
type RuntimeFilter struct {
	ColumnName string   `json:"columnName" yaml:"column_name"`
	Operator   string   `json:"operator" yaml:"operator"`
	Values     []string `json:"values" yaml:"values"`
}

var filterOperators = map[string]bool{
	"EQ": true, "NE": true, "LT": true, "LE": true, "GT": true, "GE": true,
	"CONTAINS": true, "BEGINS_WITH": true, "ENDS_WITH": true, "BW": true,
	"BW_INC": true, "BW_INC_MIN": true, "BW_INC_MAX": true, "IN": true, "NOT_IN": true,
}

// ViewConfig is the Liveboard-specific display configuration. The bridge
// serializes it verbatim into the EMBED envelope.
type ViewConfig struct {
	LiveboardID              string          `json:"liveboardId" yaml:"liveboard_id"`
	VizID                    string          `json:"vizId,omitempty" yaml:"viz_id"`
	ActiveTabID              string          `json:"activeTabId,omitempty" yaml:"active_tab_id"`
	FullHeight               bool            `json:"fullHeight,omitempty" yaml:"full_height"`
	ShowLiveboardTitle       bool            `json:"showLiveboardTitle,omitempty" yaml:"show_liveboard_title"`
	ShowLiveboardDescription bool            `json:"showLiveboardDescription,omitempty" yaml:"show_liveboard_description"`
	HideTabPanel             bool            `json:"hideTabPanel,omitempty" yaml:"hide_tab_panel"`
	VisibleActions           []string        `json:"visibleActions,omitempty" yaml:"visible_actions"`
	HiddenActions            []string        `json:"hiddenActions,omitempty" yaml:"hidden_actions"`
	DisabledActions          []string        `json:"disabledActions,omitempty" yaml:"disabled_actions"`
	DisabledActionReason     string          `json:"disabledActionReason,omitempty" yaml:"disabled_action_reason"`
	RuntimeFilters           []RuntimeFilter `json:"runtimeFilters,omitempty" yaml:"runtime_filters"`
	Locale                   string          `json:"locale,omitempty" yaml:"locale"`
}

// Validate returns the first problem with c.
func (c ViewConfig) Validate() error {
	if strings.TrimSpace(c.LiveboardID) == "" {
		return ErrMissingLiveboardID
	}
	if len(c.VisibleActions) > 0 && len(c.HiddenActions) > 0 {
		return errors.New("liveboard: visibleActions and hiddenActions are mutually exclusive")
	}
	for i, f := range c.RuntimeFilters {
		if f.ColumnName == "" {
			return fmt.Errorf("liveboard: runtime filter %d: column name is required", i)
		}
		if !filterOperators[f.Operator] {
			return fmt.Errorf("liveboard: runtime filter %d: unknown operator %q", i, f.Operator)
		}
	}
	return nil
}
