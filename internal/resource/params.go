package resource

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"threatdash/internal/filters"
)

// Default list sizes when the caller gives no limit.
const (
	DefaultActorLimit = 15
	DefaultCVELimit   = 10
)

var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Params are the query options every resource accepts. Resources ignore the
// options that do not apply to them.
type Params struct {
	Range *filters.TimeRange
	Risk  string
	Limit int
}

// ParamsFromQuery reads days, start_date, end_date, risk and limit. Limits
// above maxLimit are clamped; maxLimit <= 0 disables the clamp.
func ParamsFromQuery(q url.Values, maxLimit int) (Params, error) {
	tr, err := filters.TimeRangeFromQuery(q)
	if err != nil {
		return Params{}, err
	}
	p := Params{Range: tr, Risk: strings.ToUpper(strings.TrimSpace(q.Get("risk")))}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidLimit, raw)
		}
		if maxLimit > 0 && n > maxLimit {
			n = maxLimit
		}
		p.Limit = n
	}
	return p, nil
}

// Query encodes p as API query parameters.
func (p Params) Query() url.Values {
	q := p.Range.Query()
	if p.Risk != "" {
		q.Set("risk", p.Risk)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

func limitOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
