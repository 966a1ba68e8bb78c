package realtime

// View reconciles snapshots into local state: an ordered list plus an index
// by id. It is not safe for concurrent use.
type View struct {
	items    []Document
	index    map[string]int
	seq      uint64
	revision int
	err      error
}

// NewView returns an empty view.
func NewView() *View {
	return &View{index: map[string]int{}}
}

// Apply replaces local state with snap. Snapshots older than the last applied
// one are ignored. It reports whether the view changed.
func (v *View) Apply(snap Snapshot) bool {
	if snap.Err != nil {
		v.err = snap.Err
		return false
	}
	if snap.Seq != 0 && snap.Seq <= v.seq {
		return false
	}
	v.seq = snap.Seq
	v.err = nil
	v.items = append(v.items[:0:0], snap.Items...)
	v.index = make(map[string]int, len(v.items))
	for i, doc := range v.items {
		v.index[doc.ID] = i
	}
	v.revision++
	return true
}

// Items returns the documents in snapshot order.
func (v *View) Items() []Document {
	return append([]Document(nil), v.items...)
}

// Get looks a document up by id.
func (v *View) Get(id string) (Document, bool) {
	i, ok := v.index[id]
	if !ok {
		return Document{}, false
	}
	return v.items[i], true
}

// Len returns the number of documents.
func (v *View) Len() int { return len(v.items) }

// Revision counts applied snapshots.
func (v *View) Revision() int { return v.revision }

// Err is the most recent load error, cleared by the next good snapshot.
func (v *View) Err() error { return v.err }
