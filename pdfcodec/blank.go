package pdfcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// A4 portrait, in points.
const (
	a4Width  = 595
	a4Height = 842
)

// blankDocument returns a PDF made of n empty A4 pages. It is used when a
// sequence holds only blank pages, so there is no source to collect from.
func blankDocument(n int) []byte {
	boxes := make([][2]int, n)
	for i := range boxes {
		boxes[i] = [2]int{a4Width, a4Height}
	}
	return minimalPDF(boxes)
}

// minimalPDF writes a classic-xref PDF with one empty page per media box
// (width, height).
func minimalPDF(boxes [][2]int) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	// 1: catalog, 2: page tree, 3..: pages.
	total := 2 + len(boxes)
	offsets := make([]int, total+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(boxes))
	for i := range boxes {
		kids[i] = strconv.Itoa(i+3) + " 0 R"
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), len(boxes))

	for i, box := range boxes {
		offsets[i+3] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> >>\nendobj\n",
			i+3, box[0], box[1])
	}

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", total+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xrefOffset)

	return []byte(b.String())
}
