package website

import (
	"time"
)

type FlameItem struct {
	Offset      int64        `json:"offset_us"`
	Duration    int64        `json:"duration_us"`
	Category    string       `json:"category,omitempty"`
	Description string       `json:"description,omitempty"`
	Children    []*FlameItem `json:"children,omitempty"`
	End         time.Time    `json:"-"`
	Parent      *FlameItem   `json:"-"`
}

type PerfRecord struct {
	Route     string     `json:"route"`
	Method    string     `json:"method"`
	Path      string     `json:"path"`
	Duration  int64      `json:"duration_us"`
	Breakdown *FlameItem `json:"breakdown"`
}

// Recent request timings as a flame tree, most recent last.
func Perfmon(c *RequestContext) ResponseData {
	c.Perf.StartBlock("PERF", "Requesting perf data")
	perfData := c.PerfCollector.GetPerfCopy()
	c.Perf.EndBlock()

	c.Perf.StartBlock("PERF", "Processing perf data")
	perfRecords := []PerfRecord{}
	for _, item := range perfData.AllRequests {
		record := PerfRecord{
			Route:    item.Route,
			Method:   item.Method,
			Path:     item.Path,
			Duration: item.End.Sub(item.Start).Microseconds(),
			Breakdown: &FlameItem{
				Offset:   0,
				Duration: item.End.Sub(item.Start).Microseconds(),
				End:      item.End,
			},
		}

		parent := record.Breakdown
		for _, block := range item.Blocks {
			for parent.Parent != nil && block.End.After(parent.End) {
				parent = parent.Parent
			}
			flame := FlameItem{
				Offset:      block.Start.Sub(item.Start).Microseconds(),
				Duration:    block.End.Sub(block.Start).Microseconds(),
				Category:    block.Category,
				Description: block.Description,
				End:         block.End,
				Parent:      parent,
			}

			parent.Children = append(parent.Children, &flame)
			parent = &flame
		}

		perfRecords = append(perfRecords, record)
	}
	c.Perf.EndBlock()

	var res ResponseData
	res.WriteJson(perfRecords, c.Perf)
	return res
}
