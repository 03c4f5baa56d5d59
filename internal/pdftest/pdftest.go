// Package pdftest builds small, byte-exact PDF fixtures for tests. The
// builder tracks object offsets so generated cross-reference tables are
// always correct.
package pdftest

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"fmt"
)

// Builder assembles a classic-xref PDF file object by object.
type Builder struct {
	buf          bytes.Buffer
	offsets      map[int]int
	trailerExtra string
}

// New starts a file with a 1.7 header and a binary comment line.
func New() *Builder {
	b := &Builder{offsets: make(map[int]int)}
	b.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	return b
}

// Add writes an indirect object with the given body.
func (b *Builder) Add(num int, body string) {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

// AddStream writes a stream object. The dict must not include /Length.
func (b *Builder) AddStream(num int, dict string, payload []byte) {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(payload))
	b.buf.Write(payload)
	b.buf.WriteString("\nendstream\nendobj\n")
}

// Trailer appends extra trailer entries, e.g. "/Encrypt 5 0 R".
func (b *Builder) Trailer(extra string) { b.trailerExtra += " " + extra }

// Bytes finishes the file with an xref table and trailer pointing at the
// catalog in object 1.
func (b *Builder) Bytes() []byte {
	return b.BytesWithRoot("1 0 R")
}

// BytesWithRoot finishes the file using the given /Root reference.
func (b *Builder) BytesWithRoot(root string) []byte {
	maxNum := 0
	for n := range b.offsets {
		if n > maxNum {
			maxNum = n
		}
	}

	start := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", maxNum+1)
	b.buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		off, ok := b.offsets[num]
		if !ok {
			b.buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root %s%s >>\nstartxref\n%d\n%%%%EOF\n",
		maxNum+1, root, b.trailerExtra, start)
	return b.buf.Bytes()
}

// SinglePage builds a one-page document whose page shows content through a
// single uncompressed content stream.
func SinglePage(content string) []byte {
	b := New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(3, "<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>")
	b.AddStream(4, "", []byte(content))
	b.Add(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	return b.Bytes()
}

// MultiPage builds one page per content string. Pages with empty content
// carry no Contents entry.
func MultiPage(contents []string, infoBody string) []byte {
	b := New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := range contents {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	b.Add(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(contents)))
	for i, content := range contents {
		pageNum := 3 + 2*i
		if content == "" {
			b.Add(pageNum, "<< /Type /Page /Parent 2 0 R >>")
			continue
		}
		b.Add(pageNum, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R >>", pageNum+1))
		b.AddStream(pageNum+1, "", []byte(content))
	}
	if infoBody != "" {
		infoNum := 3 + 2*len(contents)
		b.Add(infoNum, infoBody)
		b.Trailer(fmt.Sprintf("/Info %d 0 R", infoNum))
	}
	return b.Bytes()
}

// Standard security handler parameters for revision 2 fixtures.

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func pad(pw string) []byte {
	out := make([]byte, 32)
	n := copy(out, pw)
	copy(out[n:], passwordPadding[:32-n])
	return out
}

func rc4With(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

// R2Params holds the computed Standard handler entries for a revision 2,
// 40-bit RC4 document.
type R2Params struct {
	O, U    []byte
	FileKey []byte
	P       int32
	ID      []byte
}

// NewR2Params computes O, U, and the file key per Algorithms 2, 3, and 4.
func NewR2Params(userPw, ownerPw string, p int32, fileID []byte) R2Params {
	ownerSum := md5.Sum(pad(ownerPw))
	o := rc4With(ownerSum[:5], pad(userPw))

	keyInput := append([]byte{}, pad(userPw)...)
	keyInput = append(keyInput, o...)
	keyInput = append(keyInput,
		byte(p), byte(uint32(p)>>8), byte(uint32(p)>>16), byte(uint32(p)>>24))
	keyInput = append(keyInput, fileID...)
	keySum := md5.Sum(keyInput)
	fileKey := keySum[:5]

	u := rc4With(fileKey, passwordPadding)
	return R2Params{O: o, U: u, FileKey: fileKey, P: p, ID: fileID}
}

// EncryptObject applies RC4 with the Algorithm 1 per-object key.
func (p R2Params) EncryptObject(num, gen int, data []byte) []byte {
	key := append([]byte{}, p.FileKey...)
	key = append(key, byte(num), byte(num>>8), byte(num>>16), byte(gen), byte(gen>>8))
	sum := md5.Sum(key)
	return rc4With(sum[:len(p.FileKey)+5], data)
}

func hexBytes(b []byte) string {
	return fmt.Sprintf("<%X>", b)
}

// EncryptedSinglePage builds a revision 2 encrypted one-page document. The
// page content and Info title are encrypted with the file key.
func EncryptedSinglePage(userPw, ownerPw, content, title string) []byte {
	id := []byte("0123456789abcdef")
	params := NewR2Params(userPw, ownerPw, -1, id)

	b := New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>")
	b.AddStream(4, "", params.EncryptObject(4, 0, []byte(content)))
	b.Add(5, fmt.Sprintf("<< /Filter /Standard /V 1 /R 2 /Length 40 /P -1 /O %s /U %s >>",
		hexBytes(params.O), hexBytes(params.U)))
	b.Add(6, fmt.Sprintf("<< /Title %s >>", hexBytes(params.EncryptObject(6, 0, []byte(title)))))
	b.Trailer(fmt.Sprintf("/Encrypt 5 0 R /Info 6 0 R /ID [%s %s]", hexBytes(id), hexBytes(id)))
	return b.Bytes()
}
