package event

// entry represents a single line in the event log
// e.g.
//
//	{"seq":1,"dataset":"replica","table":"orders","row":{"order_id":5}}
type entry struct {
	Seq     int64                  `json:"seq"`
	Dataset string                 `json:"dataset"`
	Table   string                 `json:"table"`
	Row     map[string]interface{} `json:"row"`
}

// event converts the entry into a ChangeEvent for the iterator to return
func (e entry) event() ChangeEvent {
	return ChangeEvent{
		Sequence: e.Seq,
		Target: TableID{
			Dataset: e.Dataset,
			Table:   e.Table,
		},
		Row: e.Row,
	}
}
