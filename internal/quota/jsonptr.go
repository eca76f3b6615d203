package quota

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractInt resolves an RFC 6901 JSON Pointer against doc and returns its
// leaf value as an int64. Both JSON numbers and decimal strings are
// accepted; any other shape (object, array, bool, null, or a
// non-numeric string) is an error.
func ExtractInt(doc []byte, pointer string) (int64, error) {
	var root any
	if err := json.Unmarshal(doc, &root); err != nil {
		return 0, fmt.Errorf("jsonptr: invalid JSON: %w", err)
	}
	v, err := resolve(root, pointer)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("jsonptr: %q at %s is not numeric", n, pointer)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("jsonptr: value at %s is not a number or decimal string (got %T)", pointer, v)
	}
}

// resolve walks an RFC 6901 pointer ("/a/b/0") against an arbitrary
// decoded JSON value.
func resolve(doc any, pointer string) (any, error) {
	if pointer == "" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("jsonptr: pointer %q must start with /", pointer)
	}
	tokens := strings.Split(pointer[1:], "/")
	cur := doc
	for _, raw := range tokens {
		tok := unescapeToken(raw)
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, fmt.Errorf("jsonptr: no such key %q", tok)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("jsonptr: invalid array index %q", tok)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("jsonptr: cannot descend into %T at %q", cur, tok)
		}
	}
	return cur, nil
}

func unescapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}
