package archive

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const (
	// DefaultEncoding is the charset the archive exporter writes shards in.
	DefaultEncoding = "windows-1251"
	// EncodingAuto sniffs the charset from a BOM or <meta charset> before decoding.
	EncodingAuto = "auto"
)

// decodeReader wraps r so that it yields UTF-8 according to label.
func decodeReader(r io.Reader, label string) (io.Reader, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "", DefaultEncoding:
		return transform.NewReader(r, charmap.Windows1251.NewDecoder()), nil
	case "utf-8", "utf8":
		return r, nil
	case EncodingAuto:
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decodeReader: read: %w", err)
		}
		enc, name, _ := charset.DetermineEncoding(b, "text/html")
		if name == "windows-1252" && !bytes.Contains(bytes.ToLower(b), []byte("1252")) {
			// The sniffer falls back to windows-1252 when nothing is declared.
			enc = charmap.Windows1251
		}
		return transform.NewReader(bytes.NewReader(b), enc.NewDecoder()), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("decodeReader: unknown encoding %q: %w", label, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
