package callbacks

import (
	"strconv"
	"strings"
)

// Int64 parses the payload data as int64.
func (p Payload) Int64() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(p.Data), 10, 64)
}

// Int parses the payload data as int.
func (p Payload) Int() (int, error) {
	return strconv.Atoi(strings.TrimSpace(p.Data))
}

// Parts splits the payload data by sep. Empty data is a syntax error.
func (p Payload) Parts(sep string) ([]string, error) {
	if p.Data == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p.Data, sep), nil
}

// TwoInt64 parses data like "123|456".
func (p Payload) TwoInt64(sep string) (int64, int64, error) {
	parts, err := p.Parts(sep)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) != 2 {
		return 0, 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
