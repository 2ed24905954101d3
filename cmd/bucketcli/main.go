package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	kitlog "github.com/go-kit/kit/log"
	"github.com/namsral/flag"

	"github.com/akhenakh/geobucket"
	"github.com/akhenakh/geobucket/layer"
)

var (
	geoJSONPath  = flag.String("geojson", "", "GeoJSON or columnar JSON file")
	replace      = flag.String("replace", "", "rows to replace as start:end")
	with         = flag.String("with", "", "GeoJSON file replacing the rows")
	stroked      = flag.Bool("stroked", true, "Maintain the polygon outlines bucket")
	textProperty = flag.String("textProperty", "", "Property used as point label")
)

func main() {
	flag.Parse()

	data, err := os.ReadFile(*geoJSONPath)
	if err != nil {
		log.Fatal(err)
	}

	d, err := layer.Decode(data)
	if err != nil {
		log.Fatal(err)
	}

	l := layer.New(kitlog.NewNopLogger(), layer.Options{Stroked: *stroked, TextProperty: *textProperty})
	if _, err := l.OnDataChanged(d, true, nil); err != nil {
		log.Fatal(err)
	}
	printCounts(l)

	if *replace == "" {
		return
	}

	r, err := parseRange(*replace)
	if err != nil {
		log.Fatal(err)
	}

	var features []*geobucket.Feature
	if *with != "" {
		wdata, err := os.ReadFile(*with)
		if err != nil {
			log.Fatal(err)
		}
		features, err = geobucket.Flatten(wdata)
		if err != nil {
			log.Fatal(err)
		}
	}

	rep, err := l.ReplaceFeatures(r, features)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("replaced rows %s by %d features\n", r, len(features))
	printCounts(l)
	for _, t := range geobucket.BucketTypes {
		if ranges, ok := rep[t]; ok {
			fmt.Printf("%-9s changed %v\n", t, ranges)
		}
	}
}

func printCounts(l *layer.Layer) {
	fmt.Printf("features: %d columnar: %t\n", len(l.Features()), l.Columnar())
	for _, t := range geobucket.BucketTypes {
		fmt.Printf("%-9s %d\n", t, l.Len(t))
	}
	if l.Labels() != nil {
		fmt.Printf("%-9s %d\n", geobucket.Text, l.Len(geobucket.Text))
	}
}

func parseRange(s string) (geobucket.Range, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return geobucket.Range{}, fmt.Errorf("invalid range %q, expecting start:end", s)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return geobucket.Range{}, fmt.Errorf("invalid range start %q: %w", parts[0], err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return geobucket.Range{}, fmt.Errorf("invalid range end %q: %w", parts[1], err)
	}
	return geobucket.Range{Start: start, End: end}, nil
}
