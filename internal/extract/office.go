package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func isUTF8(data []byte) bool {
	return utf8.Valid(data)
}

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not an Office Open XML package: %v", apperrors.ErrUnsupportedFormat, err)
	}
	return zr, nil
}

func openPart(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("package part %s missing", name)
}

// extractDocx returns the paragraphs of word/document.xml, one per line.
func extractDocx(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	rc, err := openPart(zr, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnsupportedFormat, err)
	}
	defer rc.Close()

	var (
		out       strings.Builder
		para      strings.Builder
		inText    bool
		paragraph int
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if paragraph > 0 {
					out.WriteByte('\n')
				}
				out.WriteString(para.String())
				para.Reset()
				paragraph++
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return out.String(), nil
}
