package scanning

import (
	"strconv"
	"strings"

	"github.com/kvist/reconwave/internal/errors"
)

// ParsePorts parses a comma-separated port specification into an ordered,
// deduplicated port list. Tokens that do not parse as a uint16 are skipped
// rather than fatal; order is preserved from first occurrence. If no token
// survives, a NO_VALID_PORTS error is returned.
//
// A bare numeric string is a single-element list.
func ParsePorts(spec string) ([]uint16, error) {
	tokens := strings.Split(spec, ",")
	ports := make([]uint16, 0, len(tokens))
	seen := make(map[uint16]struct{}, len(tokens))

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		value, err := strconv.ParseUint(token, 10, 16)
		if err != nil {
			continue
		}
		port := uint16(value)
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return nil, errors.ErrNoValidPorts(spec)
	}
	return ports, nil
}
