package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"speech-to-pdf/internal/models"
)

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	docxHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	docxFooter = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr></w:body></w:document>`
)

// WriteDOCX writes a minimal WordprocessingML package: a bold title, the
// summary line and one paragraph per transcript paragraph.
func WriteDOCX(w io.Writer, t models.Transcript) error {
	var body bytes.Buffer
	body.WriteString(docxHeader)
	writeRun(&body, t.Title, 32, true)
	writeRun(&body, Summary(t), 18, false)
	for _, p := range Paragraphs(t) {
		body.WriteString("<w:p>")
		writeText(&body, p.Heading()+" ", 22, true)
		writeText(&body, p.Text, 22, false)
		body.WriteString("</w:p>")
	}
	body.WriteString(docxFooter)

	zw := zip.NewWriter(w)
	for _, part := range []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(docxContentTypes)},
		{"_rels/.rels", []byte(docxRels)},
		{"word/document.xml", body.Bytes()},
	} {
		f, err := zw.Create(part.name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", part.name, err)
		}
		if _, err := f.Write(part.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}
	return zw.Close()
}

// writeRun writes a paragraph holding a single run.
func writeRun(b *bytes.Buffer, text string, halfPoints int, bold bool) {
	b.WriteString("<w:p>")
	writeText(b, text, halfPoints, bold)
	b.WriteString("</w:p>")
}

func writeText(b *bytes.Buffer, text string, halfPoints int, bold bool) {
	b.WriteString("<w:r><w:rPr>")
	if bold {
		b.WriteString("<w:b/>")
	}
	fmt.Fprintf(b, `<w:sz w:val="%d"/></w:rPr><w:t xml:space="preserve">`, halfPoints)
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString("</w:t></w:r>")
}
