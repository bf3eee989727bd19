package regmap

import (
	_ "embed"
	"sync"
)

//go:embed bq40z50.yaml
var bq40z50YAML []byte

var defaultMap = sync.OnceValues(func() (*Map, error) { return Parse(bq40z50YAML) })

// Default returns the embedded BQ40Z50 map. It panics if the embedded
// description is invalid, which the package tests rule out.
func Default() *Map {
	m, err := defaultMap()
	if err != nil {
		panic("regmap: embedded bq40z50 map: " + err.Error())
	}
	return m
}
