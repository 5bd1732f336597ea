// Package model defines the data structures used throughout the application.
//
// JSON SHAPE IS A CONTRACT:
// Every type in here is written to, or read back from, a per-day document
// that may have been produced by an older deployment or edited by hand (the
// local seed file). Decoding is therefore forgiving: a record with a field we
// don't understand must still load, and must be written back unchanged.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

// DateLayout is the calendar-day format used for message dates and document keys.
const DateLayout = "2006-01-02"

// Message is one visitor's daily mood message.
//
// The JSON names match the documents already sitting in the store
// (id, ip, date, message, timestamp, votes), so they must not change.
//
// Extra holds any other top-level fields found on a stored record. They are
// not used by the service but survive a read-modify-write cycle.
type Message struct {
	ID             string                     `json:"id"`
	SourceIdentity string                     `json:"ip"`
	Date           string                     `json:"date"`
	Text           string                     `json:"message"`
	CreatedAt      Timestamp                  `json:"timestamp"`
	Votes          map[string]float64         `json:"votes"`
	Extra          map[string]json.RawMessage `json:"-"`
}

// messageFields has Message's fields but none of its methods, so the
// custom (un)marshalers below can delegate to encoding/json without recursing.
type messageFields Message

var knownMessageFields = []string{"id", "ip", "date", "message", "timestamp", "votes"}

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields messageFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownMessageFields {
		delete(raw, k)
	}
	fields.Extra = nil
	if len(raw) > 0 {
		fields.Extra = raw
	}

	*m = Message(fields)
	return nil
}

// MarshalJSON writes the known fields in their usual order, then any Extra
// fields sorted by name.
func (m Message) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(messageFields(m))
	if err != nil || len(m.Extra) == 0 {
		return data, err
	}

	keys := lo.Filter(lo.Keys(m.Extra), func(k string, _ int) bool {
		return !lo.Contains(knownMessageFields, k)
	})
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1]) // drop the closing brace
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(m.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Timestamp is a creation time that tolerates whatever a stored record
// carries. An RFC 3339 string decodes into Time; anything else (an empty
// string, a number, null) is kept verbatim and written back as it was.
type Timestamp struct {
	time.Time
	raw json.RawMessage
}

// NewTimestamp wraps t for a freshly created record.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Valid reports whether the stored value was a parseable time.
func (ts Timestamp) Valid() bool {
	return ts.raw == nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	ts.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.raw != nil {
		return ts.raw, nil
	}
	return ts.Time.MarshalJSON()
}

// DateKey returns the UTC calendar day of t.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DocumentKey returns the blob key holding one day's collection,
// e.g. "2024-01-01-microrager.json".
func DocumentKey(date, collection string) string {
	return fmt.Sprintf("%s-%s.json", date, collection)
}

// VoteItem is one entry of a PATCH batch.
//
// Older clients sent the label as "emoji", current ones send a color
// encoding such as "rgb(1,2,3)". Count is nil when the caller did not
// supply a JSON number.
type VoteItem struct {
	ID    string
	Color string
	Emoji string
	Count *float64
}

// Label returns the vote label, preferring the color encoding.
func (v VoteItem) Label() string {
	if v.Color != "" {
		return v.Color
	}
	return v.Emoji
}

// UnmarshalJSON never fails: a malformed item decodes to a VoteItem that
// the aggregator will skip, so one bad entry cannot reject the whole batch.
func (v *VoteItem) UnmarshalJSON(data []byte) error {
	*v = VoteItem{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}

	v.ID = stringField(fields["id"])
	v.Color = stringField(fields["color"])
	v.Emoji = stringField(fields["emoji"])

	if raw, ok := fields["count"]; ok && string(raw) != "null" {
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			v.Count = &n
		}
	}
	return nil
}

func stringField(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
