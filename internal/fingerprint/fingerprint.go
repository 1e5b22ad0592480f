// Package fingerprint derives the content hash that detects edits requiring
// re-evaluation of an item.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"quizqa/internal/items"
)

// version prefixes every digest. Bump it when the canonical form changes.
const version = "v1"

// Of returns the fingerprint of the item's covered fields. Values are NFC
// normalized and stripped of surrounding whitespace; field names are part of
// the digest, so moving a value between columns changes the result.
func Of(item items.Item) string {
	return Fields(item.Covered)
}

// Fields hashes an ordered list of fields.
func Fields(fields []items.Field) string {
	h := sha256.New()
	for _, f := range fields {
		writeToken(h, f.Name)
		writeToken(h, canonical(f.Value))
	}
	return version + ":" + hex.EncodeToString(h.Sum(nil))
}

func canonical(value string) string {
	value = norm.NFC.String(value)
	value = strings.ReplaceAll(value, "\r\n", "\n")
	return strings.TrimSpace(value)
}

// writeToken length-prefixes s.
func writeToken(w io.Writer, s string) {
	_, _ = w.Write(binary.BigEndian.AppendUint64(nil, uint64(len(s))))
	_, _ = io.WriteString(w, s)
}
