// Package knowledge serves the static ISO/IEC 27001:2022 reference dictionary that is
// placed into every system prompt.
package knowledge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

//go:embed iso27001_2022.json
var iso27001 []byte

// Base is a parsed reference document.
type Base struct {
	raw      []byte
	rendered string
}

// Default returns the embedded ISO/IEC 27001:2022 dictionary.
func Default() (*Base, error) {
	return Parse(iso27001)
}

// Parse validates raw JSON and pre-renders it for prompts.
func Parse(raw []byte) (*Base, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("knowledge base is not valid json")
	}
	if !gjson.GetBytes(raw, "control_groups").IsObject() {
		return nil, errors.New("knowledge base has no control_groups object")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indent knowledge base: %w", err)
	}
	return &Base{raw: raw, rendered: buf.String()}, nil
}

// Render returns the dictionary as indented JSON in document key order.
func (b *Base) Render() string { return b.rendered }

// Standard names the standard the dictionary describes.
func (b *Base) Standard() string {
	return gjson.GetBytes(b.raw, "standard").String()
}

// ControlCount sums the per-group control counts.
func (b *Base) ControlCount() int {
	total := 0
	gjson.GetBytes(b.raw, "control_groups").ForEach(func(_, group gjson.Result) bool {
		total += int(group.Get("count").Int())
		return true
	})
	return total
}

// Clause returns the raw JSON entry of a top-level clause such as "6".
func (b *Base) Clause(number string) (json.RawMessage, bool) {
	return b.lookup("clauses." + gjson.Escape(strings.TrimSpace(number)))
}

// ControlGroup returns the raw JSON entry of an Annex A group. "A.8" and "8" name the same group.
func (b *Base) ControlGroup(id string) (json.RawMessage, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if !strings.HasPrefix(id, "A.") {
		id = "A." + id
	}
	return b.lookup("control_groups." + gjson.Escape(id))
}

func (b *Base) lookup(path string) (json.RawMessage, bool) {
	r := gjson.GetBytes(b.raw, path)
	if !r.Exists() || !r.IsObject() {
		return nil, false
	}
	return json.RawMessage(r.Raw), true
}
