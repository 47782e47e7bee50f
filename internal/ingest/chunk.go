package ingest

import "strings"

// Chunk splits text into units no longer than maxChars, preferring
// paragraph boundaries. Concatenating the returned chunks with "\n\n"
// reproduces text's content modulo whitespace trimming.
func Chunk(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > maxChars {
			flush()
			chunks = append(chunks, splitFixedWindow(para, maxChars)...)
			continue
		}
		if cur.Len()+len(para)+2 > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()

	if len(chunks) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return chunks
}

// splitFixedWindow breaks a single oversized paragraph into fixed-size
// windows on word boundaries where possible.
func splitFixedWindow(text string, maxChars int) []string {
	var out []string
	for len(text) > maxChars {
		cut := maxChars
		if idx := strings.LastIndex(text[:maxChars], " "); idx > maxChars/2 {
			cut = idx
		}
		out = append(out, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
