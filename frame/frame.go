// Package frame implements the wire unit of the RESP-style protocol spoken
// between client and server: a tagged variant (Simple/Error/Integer/Bulk/
// Array) that is read from and written to a buffered byte stream.
package frame

import "strconv"

// Kind discriminates which variant a Frame holds.
type Kind uint8

const (
	Simple Kind = iota
	Error
	Integer
	Bulk
	Array
)

// Frame is one unit of the wire protocol. Only the fields matching Kind are
// meaningful; the zero Frame is an empty Simple string.
//
// Bulk uses BulkNull to distinguish an absent value ($-1\r\n) from an empty
// byte string ($0\r\n\r\n). Array uses ArrayNull the same way for *-1\r\n.
type Frame struct {
	Kind     Kind
	Str      string  // Simple, Error
	Int      uint64  // Integer
	Bytes    []byte  // Bulk payload
	BulkNull bool    // Bulk: true means Null, Bytes is ignored
	Items    []Frame // Array elements
	ArrayNull bool   // Array: true means Null, Items is ignored
}

// NewSimple builds a Simple("text") frame.
func NewSimple(text string) Frame { return Frame{Kind: Simple, Str: text} }

// NewError builds an Error("text") frame.
func NewError(text string) Frame { return Frame{Kind: Error, Str: text} }

// NewInteger builds an Integer(n) frame.
func NewInteger(n uint64) Frame { return Frame{Kind: Integer, Int: n} }

// NewBulk builds a Bulk(b) frame holding b verbatim (b may be empty but not nil-semantic).
func NewBulk(b []byte) Frame { return Frame{Kind: Bulk, Bytes: b} }

// NewBulkString is a convenience wrapper over NewBulk for string payloads.
func NewBulkString(s string) Frame { return Frame{Kind: Bulk, Bytes: []byte(s)} }

// NullBulk is the distinguished absent-value bulk frame.
func NullBulk() Frame { return Frame{Kind: Bulk, BulkNull: true} }

// NewArray builds an Array frame from the given elements.
func NewArray(items ...Frame) Frame { return Frame{Kind: Array, Items: items} }

// NullArray is the distinguished absent-array frame.
func NullArray() Frame { return Frame{Kind: Array, ArrayNull: true} }

// String renders a Frame for logging/debugging purposes only; it is not the
// wire encoding (see Encode).
func (f Frame) String() string {
	switch f.Kind {
	case Simple:
		return "+" + f.Str
	case Error:
		return "-" + f.Str
	case Integer:
		return ":" + strconv.FormatUint(f.Int, 10)
	case Bulk:
		if f.BulkNull {
			return "$-1"
		}
		return "$" + strconv.Itoa(len(f.Bytes))
	case Array:
		if f.ArrayNull {
			return "*-1"
		}
		return "*" + strconv.Itoa(len(f.Items))
	default:
		return "?"
	}
}
