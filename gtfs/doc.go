/*
Package gtfs reads static GTFS bundles.

A bundle is a zip archive of comma separated text tables. Client downloads it,
ArchiveReader walks its entries once in archive order and NewTableReader parses
one buffered entry:

	body, err := gtfs.NewClient(gtfs.ClientOptions{StaticURL: url}).FetchBundle(ctx, "bus")
	if err != nil {
	    return err
	}
	defer body.Close()

	archive, err := gtfs.NewArchiveReader(body)
	if err != nil {
	    return err
	}
	defer archive.Close()

	for {
	    entry, err := archive.Next(gtfs.IsTabular)
	    if err == io.EOF {
	        break
	    }
	    if err != nil {
	        return err
	    }
	    rows := gtfs.NewTableReader(entry.Data)
	    // rows.Read() yields the header first, then one record per line
	}

Table names are derived from entry names: "Stops.txt" loads into "stops".
*/
package gtfs
