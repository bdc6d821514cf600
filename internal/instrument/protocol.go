package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/labsweep/internal/param"
)

// ErrInstrument wraps an ERR reply from the instrument.
var ErrInstrument = errors.New("instrument: error reply")

// FormatCommand renders a point as one request line:
//
//	MEAS name=value name=v1,v2
//
// Sequence values are comma-joined. A one-element sequence carries a
// trailing comma so it stays distinct from a scalar.
func FormatCommand(point *param.Set) string {
	var b strings.Builder
	b.WriteString("MEAS")
	for _, p := range point.Params() {
		b.WriteByte(' ')
		b.WriteString(p.Name())
		b.WriteByte('=')
		b.WriteString(formatWireValue(p.Value()))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatWireValue(v any) string {
	if param.IsSequence(v) {
		elems := param.Elements(v)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = formatWireValue(e)
		}
		if len(parts) == 1 {
			return parts[0] + ","
		}
		return strings.Join(parts, ",")
	}
	if x, ok := v.(float64); ok {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// ParseResponse parses one reply line into a result set.
//
//	OK name=value name[unit]=v1,v2
//	ERR message
//
// Comma-separated values become vector fields; a single value with a
// trailing comma is a one-element vector. Values that do not parse as
// numbers are kept as strings.
func ParseResponse(line string) (*param.Set, error) {
	line = strings.TrimSpace(line)
	status, rest, _ := strings.Cut(line, " ")
	switch status {
	case "OK":
	case "ERR":
		return nil, fmt.Errorf("%w: %s", ErrInstrument, strings.TrimSpace(rest))
	default:
		return nil, fmt.Errorf("instrument: malformed reply %q", line)
	}

	res, err := param.NewSet()
	if err != nil {
		return nil, err
	}
	for _, tok := range strings.Fields(rest) {
		key, raw, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("instrument: malformed field %q", tok)
		}
		name, units := key, ""
		if i := strings.IndexByte(key, '['); i > 0 && strings.HasSuffix(key, "]") {
			name, units = key[:i], key[i+1:len(key)-1]
		}
		if err := res.Add(param.New(name, parseWireValue(raw), units)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func parseWireValue(raw string) any {
	if !strings.Contains(raw, ",") {
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x
		}
		return raw
	}
	parts := strings.Split(raw, ",")
	if len(parts) == 2 && parts[1] == "" {
		parts = parts[:1]
	}
	nums := make([]float64, len(parts))
	for i, p := range parts {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return parts
		}
		nums[i] = x
	}
	return nums
}
