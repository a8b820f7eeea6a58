package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a cell holds
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindText
)

// String returns the kind name used in logs and error messages
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// Value is a single table cell. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Null returns the missing value
func Null() Value {
	return Value{}
}

// Number wraps a float. NaN is stored as null so that missing numeric
// measurements have exactly one representation, and -0 is stored as 0.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	if f == 0 {
		f = 0
	}
	return Value{kind: KindNumber, num: f}
}

// Text wraps a string
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Kind returns the kind of the cell
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the cell is missing
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Float returns the numeric content and whether the cell is a number
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the text content and whether the cell is text
func (v Value) Str() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// String renders the cell for lookups and CSV output. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	default:
		return ""
	}
}

// Equal reports whether two cells hold the same kind and content
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	default:
		return true
	}
}

// key encodes the cell for use in grouping maps. Kinds never collide
// because the first byte is the kind tag.
func (v Value) key() string {
	switch v.kind {
	case KindNumber:
		return "n" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return "t" + v.text
	default:
		return "0"
	}
}

// Compare orders cells: null < number < text, numbers numerically,
// text lexically.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case KindText:
		return strings.Compare(a.text, b.text)
	default:
		return 0
	}
}

// rowKey joins length-prefixed cell keys so that text containing any
// separator still produces a unique key.
func rowKey(cells []Value) string {
	var b strings.Builder
	for _, c := range cells {
		k := c.key()
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
	}
	return b.String()
}
