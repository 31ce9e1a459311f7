package vector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// codePages maps the names found in .cpg files to DBF text encodings. A nil
// encoding means UTF-8.
var codePages = map[string]encoding.Encoding{
	"UTF-8":        nil,
	"UTF8":         nil,
	"65001":        nil,
	"ISO-8859-1":   charmap.ISO8859_1,
	"ISO8859-1":    charmap.ISO8859_1,
	"ISO88591":     charmap.ISO8859_1,
	"8859_1":       charmap.ISO8859_1,
	"LATIN1":       charmap.ISO8859_1,
	"ISO-8859-15":  charmap.ISO8859_15,
	"ISO8859-15":   charmap.ISO8859_15,
	"8859_15":      charmap.ISO8859_15,
	"1252":         charmap.Windows1252,
	"CP1252":       charmap.Windows1252,
	"WINDOWS-1252": charmap.Windows1252,
	"ANSI 1252":    charmap.Windows1252,
	"850":          charmap.CodePage850,
	"CP850":        charmap.CodePage850,
	"437":          charmap.CodePage437,
	"CP437":        charmap.CodePage437,
}

// dbfDecoder turns raw DBF text into UTF-8.
type dbfDecoder struct {
	enc encoding.Encoding
	cpg bool
}

// newDBFDecoder reads the .cpg file next to shpPath. Without one, text that
// is not valid UTF-8 is read as ISO-8859-1.
func newDBFDecoder(shpPath string) (*dbfDecoder, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".cpg", ".CPG"} {
		data, err := os.ReadFile(base + ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		name := strings.ToUpper(strings.TrimSpace(string(data)))
		enc, ok := codePages[name]
		if !ok {
			return nil, fmt.Errorf("unsupported code page %q in %s", name, base+ext)
		}
		return &dbfDecoder{enc: enc, cpg: true}, nil
	}
	return &dbfDecoder{enc: charmap.ISO8859_1}, nil
}

func (d *dbfDecoder) decode(s string) (string, error) {
	if d.enc == nil || (!d.cpg && utf8.ValidString(s)) {
		return s, nil
	}
	return d.enc.NewDecoder().String(s)
}
