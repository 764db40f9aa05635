package gtfs

import (
	"bytes"
	"encoding/csv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewTableReader returns a CSV reader over one buffered table entry. The first
// record it yields is the header. A leading UTF-8 byte order mark is dropped and
// every record must have as many fields as the header.
func NewTableReader(data []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = 0
	return r
}
