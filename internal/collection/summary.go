package collection

// Summary describes a built collection without its matrices.
type Summary struct {
	Name           string          `json:"name"`
	Source         string          `json:"source,omitempty"`
	DatetimeFormat string          `json:"datetime_format,omitempty"`
	BuildID        string          `json:"build_id"`
	Instruments    map[string]int  `json:"instruments"`
	Columns        map[string]int  `json:"columns"`
	CloseColumn    string          `json:"close_column"`
	Steps          int             `json:"steps"`
	First          int64           `json:"first"`
	Last           int64           `json:"last"`
	Spans          map[string]Span `json:"spans"`
}

// Summary returns a description of the collection.
func (c *Collection) Summary() Summary {
	s := Summary{
		Name:           c.name,
		Source:         c.source,
		DatetimeFormat: c.datetimeFormat,
		BuildID:        c.buildID,
		Instruments:    make(map[string]int, len(c.names)),
		Columns:        c.Columns(),
		CloseColumn:    c.header[c.closeIndex],
		Steps:          len(c.timeline),
		First:          c.timeline[0],
		Last:           c.timeline[len(c.timeline)-1],
		Spans:          make(map[string]Span, len(c.names)),
	}
	for id, name := range c.names {
		s.Instruments[name] = id
		s.Spans[name] = c.spans[id]
	}
	return s
}
