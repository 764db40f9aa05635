// Package gtfstest builds GTFS zip bundles for tests.
package gtfstest

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zip"
)

// File is one archive member. Names ending in "/" become directories.
type File struct {
	Name string
	Body string
}

// Zip writes files into an in-memory archive in the given order.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, f := range files {
		fw, err := w.Create(f.Name)
		if err != nil {
			t.Fatalf("create %s: %v", f.Name, err)
		}
		if f.Body == "" {
			continue
		}
		if _, err := fw.Write([]byte(f.Body)); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// MinimalBundle returns a small feed with agency, stops, routes and a readme.
func MinimalBundle(t testing.TB) []byte {
	t.Helper()
	return Zip(t,
		File{Name: "agency.txt", Body: "agency_id,agency_name,agency_url,agency_timezone\nTEST,Test Agency,http://test.com,Europe/Sofia\n"},
		File{Name: "stops.txt", Body: "stop_id,stop_name,stop_lat,stop_lon\nSTOP1,Stop 1,42.6977,23.3219\nSTOP2,\"Main St, North\",42.7,23.33\n"},
		File{Name: "routes.txt", Body: "route_id,agency_id,route_short_name,route_long_name,route_type\nR1,TEST,1,Route 1,3\n"},
		File{Name: "readme.md", Body: "# not a table\n"},
	)
}
