package probe

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type FieldType uint8

const (
	FieldTypeInt FieldType = iota
	FieldTypeString
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeInt:
		return "int"
	case FieldTypeString:
		return "string"
	}
	return "unknown"
}

func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Field is a single typed value. Only the member matching Type is set.
type Field struct {
	Name string
	Type FieldType
	Int  uint64
	Str  string
}

// FieldSet is the ordered result of classifying one response. Reset keeps
// the backing array so a worker can reuse one set per response.
type FieldSet struct {
	fields []Field
}

func NewFieldSet(capacity int) *FieldSet {
	return &FieldSet{fields: make([]Field, 0, capacity)}
}

func (fs *FieldSet) Reset() {
	fs.fields = fs.fields[:0]
}

func (fs *FieldSet) AddUint64(name string, v uint64) {
	fs.fields = append(fs.fields, Field{Name: name, Type: FieldTypeInt, Int: v})
}

func (fs *FieldSet) AddString(name string, v string) {
	fs.fields = append(fs.fields, Field{Name: name, Type: FieldTypeString, Str: v})
}

func (fs *FieldSet) Len() int {
	return len(fs.fields)
}

// Fields returns the fields in insertion order. The slice is only valid
// until the next Reset.
func (fs *FieldSet) Fields() []Field {
	return fs.fields
}

func (fs *FieldSet) Get(name string) (Field, bool) {
	for _, f := range fs.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Clone returns an independent copy.
func (fs *FieldSet) Clone() *FieldSet {
	out := &FieldSet{fields: make([]Field, len(fs.fields))}
	copy(out.fields, fs.fields)
	return out
}

// MarshalJSON keeps field order, which a map would lose.
func (fs *FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		switch f.Type {
		case FieldTypeInt:
			buf.WriteString(strconv.FormatUint(f.Int, 10))
		default:
			s, err := json.Marshal(f.Str)
			if err != nil {
				return nil, err
			}
			buf.Write(s)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
