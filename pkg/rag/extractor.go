// Package rag turns course documents into a retrievable, semantically
// indexed corpus and retrieves top-k fragments for a query.
package rag

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/paideia-labs/paideia/pkg/fault"
)

const component = "rag"

// Page is one page of extracted text. Formats without a page concept map to
// one page per natural unit (sheet, whole document).
type Page struct {
	Number int
	Text   string
}

// ExtractPages extracts text from a source document, dispatching on the
// filename extension. Unreadable or empty sources fail with the corrupt
// source kind so the caller never writes a partial collection.
func ExtractPages(filename string, data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, fault.New(fault.KindCorruptSource, component, "extract", "source document is empty")
	}

	var pages []Page
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		pages, err = extractPDF(data)
	case ".docx":
		pages, err = extractDocx(data)
	case ".xlsx":
		pages, err = extractXlsx(data)
	case ".txt", ".md", "":
		pages = []Page{{Number: 1, Text: string(data)}}
	default:
		return nil, fault.New(fault.KindCorruptSource, component, "extract",
			fmt.Sprintf("unsupported source format: %q", filepath.Ext(filename)))
	}
	if err != nil {
		return nil, err
	}

	nonEmpty := pages[:0]
	for _, page := range pages {
		if strings.TrimSpace(page.Text) != "" {
			nonEmpty = append(nonEmpty, page)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, fault.New(fault.KindCorruptSource, component, "extract", "source document contains no extractable text")
	}
	return nonEmpty, nil
}

func extractPDF(data []byte) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.Wrap(fault.KindCorruptSource, component, "extract", "failed to parse PDF", err)
	}

	totalPages := reader.NumPage()
	pages := make([]Page, 0, totalPages)
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page poisons the whole ingest.
			return nil, fault.Wrap(fault.KindCorruptSource, component, "extract",
				fmt.Sprintf("failed to extract page %d", pageNum), err)
		}
		pages = append(pages, Page{Number: pageNum, Text: text})
	}
	return pages, nil
}

func extractDocx(data []byte) ([]Page, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.Wrap(fault.KindCorruptSource, component, "extract", "failed to parse Word document", err)
	}
	defer doc.Close()

	return []Page{{Number: 1, Text: doc.Editable().GetContent()}}, nil
}

func extractXlsx(data []byte) ([]Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fault.Wrap(fault.KindCorruptSource, component, "extract", "failed to parse Excel document", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]Page, 0, len(sheets))
	for i, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fault.Wrap(fault.KindCorruptSource, component, "extract",
				fmt.Sprintf("failed to read sheet %q", sheetName), err)
		}

		var sheetText strings.Builder
		sheetText.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					cells = append(cells, text)
				}
			}
			if len(cells) > 0 {
				sheetText.WriteString(strings.Join(cells, " | ") + "\n")
			}
		}
		pages = append(pages, Page{Number: i + 1, Text: sheetText.String()})
	}
	return pages, nil
}
