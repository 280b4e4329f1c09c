// Package transcript is the bounded chat log shown next to the planning workspace.
package transcript

// DefaultCapacity is the number of most recent entries kept.
const DefaultCapacity = 25

// Kind tells sinks who wrote an entry.
type Kind string

const (
	KindAgent  Kind = "agent"
	KindUser   Kind = "user"
	KindSystem Kind = "system"
)

// Entry is one chat line.
type Entry struct {
	Kind   Kind   `json:"kind"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Color  string `json:"color"`
}

// Transcript is append-only; once full, every append evicts the oldest entry.
type Transcript struct {
	capacity int
	entries  []Entry
	// appended counts every entry since the last reset, including evicted ones.
	appended int
}

// New returns an empty transcript. A capacity below one falls back to [DefaultCapacity].
func New(capacity int) *Transcript {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Transcript{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
		appended: 0,
	}
}

// Append adds e after the newest entry.
func (t *Transcript) Append(e Entry) {
	if len(t.entries) == t.capacity {
		copy(t.entries, t.entries[1:])
		t.entries = t.entries[:len(t.entries)-1]
	}
	t.entries = append(t.entries, e)
	t.appended++
}

// Entries returns a copy, oldest first.
func (t *Transcript) Entries() []Entry {
	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

func (t *Transcript) Len() int {
	return len(t.entries)
}

func (t *Transcript) Capacity() int {
	return t.capacity
}

// Appended is the number of entries appended since the last reset. Sinks that print the log incrementally use it
// to tell which entries are new.
func (t *Transcript) Appended() int {
	return t.appended
}

// Reset drops every entry.
func (t *Transcript) Reset() {
	t.entries = t.entries[:0]
	t.appended = 0
}
