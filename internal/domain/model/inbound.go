package model

// InboundCall is the body of an update_match_data call. Either JSONData
// carries the full document, or the flattened legacy fields do.
type InboundCall struct {
	JSONData map[string]any `json:"json_data,omitempty"`
	Data     *string        `json:"data,omitempty"`
	TeamData map[string]any `json:"TeamData,omitempty"`
	MMRData  map[string]any `json:"MMRData,omitempty"`
}

// HasFullPayload reports whether json_data was supplied.
func (c InboundCall) HasFullPayload() bool {
	return c.JSONData != nil
}

// Document returns the telemetry document this call carries. json_data is
// used verbatim; otherwise {data, TeamData, MMRData} is assembled with
// missing objects defaulting to empty ones.
func (c InboundCall) Document() Document {
	if c.HasFullPayload() {
		return Document(c.JSONData)
	}

	var data any
	if c.Data != nil {
		data = *c.Data
	}
	team := c.TeamData
	if team == nil {
		team = map[string]any{}
	}
	mmr := c.MMRData
	if mmr == nil {
		mmr = map[string]any{}
	}
	return Document{
		KeyData:     data,
		KeyTeamData: team,
		KeyMMRData:  mmr,
	}
}
