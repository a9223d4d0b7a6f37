package metadata

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dictionary maps numeric exchange codes to display names.
type Dictionary map[int32]string

// UnmarshalJSON accepts the endpoint wire form, a JSON object keyed by the
// decimal code.
func (d *Dictionary) UnmarshalJSON(b []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Dictionary, len(raw))
	for key, name := range raw {
		code, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid dictionary code %q", key)
		}
		out[int32(code)] = name
	}
	*d = out
	return nil
}

// MarshalJSON writes the endpoint wire form.
func (d Dictionary) MarshalJSON() ([]byte, error) {
	raw := make(map[string]string, len(d))
	for code, name := range d {
		raw[strconv.FormatInt(int64(code), 10)] = name
	}
	return json.Marshal(raw)
}

// Bundle is the interchange form of a full dictionary set, as served by a
// metadata endpoint or assembled from local dictionary dumps.
type Bundle struct {
	Vendors             Dictionary `json:"vendors,omitempty"`
	GDNVendors          []int32    `json:"gdn_vendors,omitempty"`
	ProductCategories   Dictionary `json:"product_categories,omitempty"`
	SensitiveCategories Dictionary `json:"sensitive_categories,omitempty"`
	CreativeAttributes  Dictionary `json:"creative_attributes,omitempty"`
	Agencies            Dictionary `json:"agencies,omitempty"`
	Sellers             *Sellers   `json:"sellers,omitempty"`
}

// Sellers is the exchange's seller directory. The directory format is
// versioned so consumers can refuse dumps newer or older than they
// understand.
type Sellers struct {
	Version string   `json:"version"`
	Sellers []Seller `json:"sellers,omitempty"`
}

// Seller is one selling network in the directory.
type Seller struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// parseDictionary reads the exchange's dictionary dump format: one
// "<code> <name>" entry per line, blank lines and #-comments skipped.
func parseDictionary(r io.Reader) (Dictionary, error) {
	dict := Dictionary{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		codeText := line
		name := ""
		if idx := strings.IndexAny(line, " \t"); idx >= 0 {
			codeText = line[:idx]
			name = strings.TrimSpace(line[idx:])
		}
		code, err := strconv.ParseInt(codeText, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid dictionary line %q", line)
		}
		dict[int32(code)] = name
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return dict, nil
}

// parseCodeList reads a dump holding bare codes, one per line.
func parseCodeList(r io.Reader) ([]int32, error) {
	var codes []int32
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code, err := strconv.ParseInt(line, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid code line %q", line)
		}
		codes = append(codes, int32(code))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}
