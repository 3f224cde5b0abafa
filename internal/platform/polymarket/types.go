package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string. Use *flexBool
// to keep null distinct from false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

func (f *flexBool) ptr() *bool {
	if f == nil {
		return nil
	}
	b := bool(*f)
	return &b
}

// flexString accepts a JSON string or number. Gamma ids show up as both.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexString(data)
	return nil
}

// flexFloat accepts a JSON number or numeric string. Anything else decodes
// as not valid rather than failing the whole page.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat{}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}
	if v, err := strconv.ParseFloat(string(data), 64); err == nil {
		*f = flexFloat{Value: v, Valid: true}
	}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// StringList decodes list fields the Gamma API sends either as a native JSON
// array or as a JSON-encoded string holding an array ("[\"Yes\",\"No\"]").
// Absent, null or unparseable values decode to nil. Non-string elements keep
// their JSON literal text; null elements become "".
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	*s = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '[':
		*s = parseArray(data)
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		str = strings.TrimSpace(str)
		if strings.HasPrefix(str, "[") {
			*s = parseArray([]byte(str))
		}
	}
	return nil
}

func parseArray(data []byte) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		switch {
		case bytes.Equal(item, []byte("null")):
			out = append(out, "")
		case len(item) > 0 && item[0] == '"':
			var v string
			_ = json.Unmarshal(item, &v)
			out = append(out, v)
		default:
			out = append(out, string(item))
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APITag is a taxonomy tag. Events sometimes carry tags as bare strings, in
// which case the string becomes the label.
type APITag struct {
	ID    flexString `json:"id"`
	Label string     `json:"label"`
	Slug  string     `json:"slug"`
}

func (t *APITag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = APITag{Label: s}
		return nil
	}
	type plain APITag
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = APITag(p)
	return nil
}

// Name returns the label, falling back to the slug.
func (t APITag) Name() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Slug
}

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets. Raw keeps the exact bytes
// received so the catalog can be archived verbatim.
type APIEvent struct {
	ID       flexString  `json:"id"`
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	Category string      `json:"category"`
	Tags     []APITag    `json:"tags"`
	Markets  []APIMarket `json:"markets"`

	Raw json.RawMessage `json:"-"`
}

func (e *APIEvent) UnmarshalJSON(data []byte) error {
	type plain APIEvent
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = APIEvent(p)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the original payload when there is one.
func (e APIEvent) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain APIEvent
	return json.Marshal(plain(e))
}

// APIMarket is a market nested inside an event.
type APIMarket struct {
	ID              flexString `json:"id"`
	Slug            string     `json:"slug"`
	Question        string     `json:"question"`
	ConditionID     string     `json:"conditionId"`
	Active          *flexBool  `json:"active"`
	Closed          *flexBool  `json:"closed"`
	EnableOrderBook *flexBool  `json:"enableOrderBook"`
	EndDateISO      string     `json:"endDateIso"`
	EndDate         string     `json:"endDate"`
	Outcomes        StringList `json:"outcomes"`
	ClobTokenIDs    StringList `json:"clobTokenIds"`
	VolumeNum       flexFloat  `json:"volumeNum"`
	LiquidityNum    flexFloat  `json:"liquidityNum"`
}

// IsActive returns the tri-state active flag.
func (m *APIMarket) IsActive() *bool { return m.Active.ptr() }

// IsClosed returns the tri-state closed flag.
func (m *APIMarket) IsClosed() *bool { return m.Closed.ptr() }

// OrderBookEnabled returns the tri-state enableOrderBook flag.
func (m *APIMarket) OrderBookEnabled() *bool { return m.EnableOrderBook.ptr() }

// Volume returns volumeNum, or nil when absent.
func (m *APIMarket) Volume() *float64 { return m.VolumeNum.ptr() }

// Liquidity returns liquidityNum, or nil when absent.
func (m *APIMarket) Liquidity() *float64 { return m.LiquidityNum.ptr() }

// EndDateUTC prefers the date-only field and falls back to the timestamp.
func (m *APIMarket) EndDateUTC() string {
	if m.EndDateISO != "" {
		return m.EndDateISO
	}
	return m.EndDate
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// PriceRequest is one item of a POST /prices body.
type PriceRequest struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
}

// priceText decodes one side's price, sent either as a string or a number,
// into its exact text. Null and other shapes decode to "".
type priceText string

func (p *priceText) UnmarshalJSON(data []byte) error {
	*p = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*p = priceText(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil {
		*p = priceText(data)
	}
	return nil
}

// parsePrices decodes a POST /prices reply shaped
// {token_id: {"BUY": price, "SELL": price}}. Entries whose value is not an
// object are ignored, as are sides other than BUY and SELL.
func parsePrices(body []byte) (map[string]map[string]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(top))
	for tokenID, raw := range top {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var sides map[string]priceText
		if err := json.Unmarshal(raw, &sides); err != nil {
			continue
		}
		for side, price := range sides {
			if side != "BUY" && side != "SELL" {
				continue
			}
			if out[tokenID] == nil {
				out[tokenID] = make(map[string]string, 2)
			}
			out[tokenID][side] = string(price)
		}
	}
	return out, nil
}
