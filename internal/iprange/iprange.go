// Package iprange expands user supplied IPv4 range expressions into a
// fully materialized, ordered list of addresses.
//
// Four grammars are accepted, tried in this order against the trimmed input:
// a comma separated list, a CIDR block, a hyphenated start-end range and a
// single address. ParseBounds covers the fifth form where the caller already
// holds the two bounds as separate values.
package iprange

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/anstrom/hostsweep/internal/errors"
)

// DefaultMaxAddresses caps an expansion at a /16 network.
const DefaultMaxAddresses = 65536

// Failure messages. Each is shown to users followed by errors.RangeHelp.
const (
	MsgNoRange        = "No IP range provided."
	MsgInvalidCIDR    = "Invalid CIDR format."
	MsgStartAfterEnd  = "Start IP must be less than or equal to End IP."
	MsgInvalidInRange = "Invalid IP format in range."
	MsgInvalidRange   = "Invalid range format."
	MsgInvalidBounds  = "Invalid IP parameters."
	MsgInvalidIP      = "Invalid IP format."
	MsgEmpty          = "No valid IPs found."
)

// AddressList is an ordered, duplicate free list of IPv4 addresses.
type AddressList []netip.Addr

// Strings renders the list in dotted decimal form.
func (l AddressList) Strings() []string {
	out := make([]string, len(l))
	for i, addr := range l {
		out[i] = addr.String()
	}
	return out
}

// Parser expands range expressions. The zero value applies
// DefaultMaxAddresses.
type Parser struct {
	// MaxAddresses rejects expansions larger than this. Zero means
	// DefaultMaxAddresses, a negative value disables the check.
	MaxAddresses int
}

// Parse expands expr with the default Parser.
func Parse(expr string) (AddressList, error) {
	return Parser{}.Parse(expr)
}

// ParseBounds expands the inclusive range [start, end] with the default Parser.
func ParseBounds(start, end string) (AddressList, error) {
	return Parser{}.ParseBounds(start, end)
}

// Parse expands a range expression. All failures are *errors.RangeError.
func (p Parser) Parse(expr string) (AddressList, error) {
	input := strings.TrimSpace(expr)
	if input == "" {
		return nil, errors.NewRangeError(MsgNoRange, expr)
	}

	var (
		list AddressList
		err  error
	)
	switch {
	case strings.Contains(input, ","):
		list, err = p.parseList(input)
	case strings.Contains(input, "/"):
		list, err = p.parseCIDR(input)
	case strings.Contains(input, "-"):
		list, err = p.parseHyphen(input)
	default:
		addr, ok := parseV4(input)
		if !ok {
			return nil, errors.NewRangeError(MsgInvalidIP, expr)
		}
		list = AddressList{addr}
	}
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.NewRangeError(MsgEmpty, expr)
	}
	return list, nil
}

// ParseBounds expands the inclusive range between two separately supplied
// addresses. An empty start is treated like an empty expression.
func (p Parser) ParseBounds(start, end string) (AddressList, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" {
		return nil, errors.NewRangeError(MsgNoRange, start)
	}
	if end == "" {
		return p.Parse(start)
	}

	input := start + "-" + end
	first, ok1 := parseV4(start)
	last, ok2 := parseV4(end)
	if !ok1 || !ok2 {
		return nil, errors.NewRangeError(MsgInvalidBounds, input)
	}
	return p.expand(first, last, input)
}

func (p Parser) parseList(input string) (AddressList, error) {
	seen := make(map[netip.Addr]struct{})
	var list AddressList
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, ok := parseV4(part)
		if !ok {
			return nil, errors.NewRangeError(fmt.Sprintf("Invalid IP in list: '%s'.", part), input)
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		list = append(list, addr)
	}
	if err := p.checkSize(uint64(len(list)), input); err != nil {
		return nil, err
	}
	return list, nil
}

func (p Parser) parseCIDR(input string) (AddressList, error) {
	prefix, err := netip.ParsePrefix(input)
	if err != nil || !prefix.Addr().Is4() {
		return nil, errors.WrapRangeError(MsgInvalidCIDR, input, err)
	}
	prefix = prefix.Masked()

	first := toUint32(prefix.Addr())
	last := first | (^uint32(0) >> prefix.Bits())
	return p.expand(prefix.Addr(), fromUint32(last), input)
}

func (p Parser) parseHyphen(input string) (AddressList, error) {
	parts := strings.Split(input, "-")
	if len(parts) != 2 {
		return nil, errors.NewRangeError(MsgInvalidRange, input)
	}
	first, ok1 := parseV4(strings.TrimSpace(parts[0]))
	last, ok2 := parseV4(strings.TrimSpace(parts[1]))
	if !ok1 || !ok2 {
		return nil, errors.NewRangeError(MsgInvalidInRange, input)
	}
	return p.expand(first, last, input)
}

// expand materializes [first, last] in ascending order.
func (p Parser) expand(first, last netip.Addr, input string) (AddressList, error) {
	lo, hi := toUint32(first), toUint32(last)
	if lo > hi {
		return nil, errors.NewRangeError(MsgStartAfterEnd, input)
	}

	count := uint64(hi) - uint64(lo) + 1
	if err := p.checkSize(count, input); err != nil {
		return nil, err
	}

	list := make(AddressList, 0, count)
	for v := uint64(lo); v <= uint64(hi); v++ {
		list = append(list, fromUint32(uint32(v)))
	}
	return list, nil
}

func (p Parser) checkSize(count uint64, input string) error {
	limit := p.MaxAddresses
	if limit == 0 {
		limit = DefaultMaxAddresses
	}
	if limit > 0 && count > uint64(limit) {
		return errors.NewRangeError(
			fmt.Sprintf("Range expands to %d addresses, more than the limit of %d.", count, limit), input)
	}
	return nil
}

func parseV4(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}
	return addr, true
}

func toUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func fromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
