/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	libcbr "github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '`' && s[len(s)-1] == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// MarshalJSON implements json.Marshaler.
func (p NetworkProtocol) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *NetworkProtocol) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = Parse(s)
	return nil
}

// MarshalYAML implements yaml.Marshaler, returning the plain string form.
func (p NetworkProtocol) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for gopkg.in/yaml.v3 nodes.
func (p *NetworkProtocol) UnmarshalYAML(value *yaml.Node) error {
	*p = Parse(unquote(value.Value))
	return nil
}

// MarshalTOML renders the protocol as its plain, unquoted name.
func (p NetworkProtocol) MarshalTOML() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalTOML accepts either a []byte or string payload.
func (p *NetworkProtocol) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case []byte:
		*p = Parse(unquote(string(t)))
	case string:
		*p = Parse(unquote(t))
	default:
		return fmt.Errorf("protocol: value not in valid format: %T", v)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p NetworkProtocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *NetworkProtocol) UnmarshalText(b []byte) error {
	*p = Parse(string(b))
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (p NetworkProtocol) MarshalCBOR() ([]byte, error) {
	return libcbr.Marshal(p.String())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (p *NetworkProtocol) UnmarshalCBOR(b []byte) error {
	var s string
	if err := libcbr.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = Parse(s)
	return nil
}
