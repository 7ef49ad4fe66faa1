package document

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"

	"github.com/contractlens/extractor/internal/common"
)

// openDOCX reads word/document.xml out of the ZIP container and walks the XML
// token stream for paragraph text. DOCX has no fixed pagination, so the whole
// body becomes one logical page; embedded media marks it image-bearing.
func openDOCX(path string) (*Document, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, common.NewFileError(path, "corrupted or invalid docx", err)
	}
	defer r.Close()

	var docFile *zip.File
	hasMedia := false
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
		}
		if strings.HasPrefix(f.Name, "word/media/") {
			hasMedia = true
		}
	}
	if docFile == nil {
		return nil, common.NewFileError(path, "word/document.xml not found in archive", nil)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, common.NewFileError(path, "cannot open document.xml", err)
	}
	defer rc.Close()

	text, err := decodeDocumentXML(rc)
	if err != nil {
		return nil, common.NewFileError(path, "cannot parse document.xml", err)
	}

	return &Document{
		Path:  path,
		Kind:  KindDOCX,
		Pages: []Page{{Number: 1, Text: text, HasImages: hasMedia}},
	}, nil
}

func decodeDocumentXML(rc io.Reader) (string, error) {
	decoder := xml.NewDecoder(rc)
	var body strings.Builder
	var current strings.Builder
	inParagraph := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" {
				inParagraph = true
				current.Reset()
			}
		case xml.CharData:
			if inParagraph {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				if text := strings.TrimSpace(current.String()); text != "" {
					if body.Len() > 0 {
						body.WriteByte('\n')
					}
					body.WriteString(text)
				}
			}
		}
	}
	return body.String(), nil
}
