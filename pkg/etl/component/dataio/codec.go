// Package dataio implements the Data Loader and Data Saver. Formats are chosen by file
// extension and read from or written to a storage connection.
package dataio

import (
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/tigerroll/datafactory/pkg/etl/core/table"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/registry"
)

const moduleName = "io"

var nan = math.NaN()

// Codec reads and writes one file format.
type Codec interface {
	// Decode reads a table. limit > 0 caps the number of data rows.
	Decode(r io.Reader, limit int) (*table.Table, error)
	Encode(w io.Writer, t *table.Table) error
}

// Codecs maps lower-case extensions without the dot to codecs.
var Codecs = registry.New[Codec]("format")

func init() {
	Codecs.MustRegister("csv", csvCodec{})
	Codecs.MustRegister("json", jsonCodec{})
	Codecs.MustRegister("xlsx", xlsxCodec{})
	Codecs.MustRegister("parquet", parquetCodec{})
}

// CodecFor returns the codec for the extension of path.
func CodecFor(path string) (Codec, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	codec, err := Codecs.Get(ext)
	if err != nil {
		return nil, exception.NewPipelineErrorf(moduleName, "unsupported file format '%s' for %s", filepath.Ext(path), path, exception.ErrUnsupportedFormat)
	}
	return codec, nil
}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	_, err := CodecFor(path)
	return err == nil
}
