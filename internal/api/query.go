package api

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"pairprice/internal/config"
	"pairprice/internal/engine"
)

const maxParamLen = 100

var (
	identRe  = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
	digitsRe = regexp.MustCompile(`^\d+$`)
)

// parseQuery validates the get_pair_price query string. Absent options
// stay nil so the engine applies its defaults.
func parseQuery(v url.Values) (engine.Query, error) {
	var q engine.Query
	var err error

	if q.A, err = identifier(v, "a", true); err != nil {
		return q, err
	}
	if q.B, err = identifier(v, "b", true); err != nil {
		return q, err
	}
	if q.RequestID, err = identifier(v, "requestId", false); err != nil {
		return q, err
	}

	ab, err := integer(v, "abPrecision", config.MaxPrecision)
	if err != nil {
		return q, err
	}
	if ab != nil {
		p := int32(*ab)
		q.ABPrecision = &p
	}
	conf, err := integer(v, "confPrecision", config.MaxPrecision)
	if err != nil {
		return q, err
	}
	if conf != nil {
		p := int32(*conf)
		q.ConfPrecision = &p
	}
	q.MaxTimestampDiff, err = integer(v, "maxTimestampDiff", config.MaxTimestampDiffMax)
	if err != nil {
		return q, err
	}
	return q, nil
}

func identifier(v url.Values, name string, required bool) (string, error) {
	s := v.Get(name)
	if s == "" {
		if required {
			return "", fmt.Errorf("%s: required", name)
		}
		return "", nil
	}
	if len(s) > maxParamLen {
		return "", fmt.Errorf("%s: longer than %d characters", name, maxParamLen)
	}
	if !identRe.MatchString(s) {
		return "", fmt.Errorf("%s: only letters, digits, '.' and '-' are allowed", name)
	}
	return s, nil
}

func integer(v url.Values, name string, upper int64) (*int64, error) {
	if !v.Has(name) {
		return nil, nil
	}
	s := v.Get(name)
	if len(s) == 0 || len(s) > maxParamLen || !digitsRe.MatchString(s) {
		return nil, fmt.Errorf("%s: must be a non-negative integer", name)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n > upper {
		return nil, fmt.Errorf("%s: must be at most %d", name, upper)
	}
	return &n, nil
}
