package scanner

import "bytes"

// StreamPayload slices a stream body out of data. start must point just past
// the "stream" keyword. When length is non-negative and lands in front of a
// plausible "endstream", it is trusted; otherwise the payload is recovered by
// searching for the closing keyword, which tolerates wrong /Length entries.
func StreamPayload(data []byte, start int64, length int64) (payload []byte, end int64, ok bool) {
	n := int64(len(data))
	// Per spec the keyword is followed by CRLF or LF; tolerate stray spaces
	// and a lone CR from sloppy producers.
	for start < n && (data[start] == ' ' || data[start] == '\t') {
		start++
	}
	if start < n && data[start] == '\r' {
		start++
	}
	if start < n && data[start] == '\n' {
		start++
	}
	if start > n {
		return nil, start, false
	}
	if length >= 0 && start+length <= n {
		end := start + length
		if hasEndstreamNear(data, end) {
			return data[start:end], end, true
		}
	}
	idx := bytes.Index(data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, start, false
	}
	end = start + int64(idx)
	// Trim the EOL that precedes the keyword.
	trimmed := end
	if trimmed > start && data[trimmed-1] == '\n' {
		trimmed--
	}
	if trimmed > start && data[trimmed-1] == '\r' {
		trimmed--
	}
	return data[start:trimmed], end, true
}

func hasEndstreamNear(data []byte, off int64) bool {
	n := int64(len(data))
	for k := 0; k < 4 && off < n; k++ {
		c := data[off]
		if c == '\r' || c == '\n' || c == ' ' || c == '\t' {
			off++
			continue
		}
		break
	}
	return off+9 <= n && bytes.Equal(data[off:off+9], []byte("endstream"))
}
