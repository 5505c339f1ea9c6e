package bcvtb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is the only message version this package speaks.
const ProtocolVersion = 2

// Flag values carried in the second field of every message.
const (
	FlagContinue  = 0
	FlagTerminate = 1
)

// ErrProtocol reports a malformed or unexpected message.
var ErrProtocol = errors.New("bcvtb protocol error")

// Message is one exchanged vector set.
type Message struct {
	Flag    int
	Time    float64
	Doubles []float64
	Ints    []int32
	Bools   []bool
}

// Terminated reports whether the message carries a non-continue flag.
func (m Message) Terminated() bool { return m.Flag != FlagContinue }

// MarshalText renders m in wire format, including the trailing newline.
func (m Message) MarshalText() ([]byte, error) {
	var b strings.Builder
	b.WriteString(strconv.Itoa(ProtocolVersion))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(m.Flag))
	b.WriteByte(' ')
	if m.Flag != FlagContinue {
		b.WriteByte('\n')
		return []byte(b.String()), nil
	}
	fmt.Fprintf(&b, "%d %d %d %.15e ", len(m.Doubles), len(m.Ints), len(m.Bools), m.Time)
	for _, d := range m.Doubles {
		b.WriteString(strconv.FormatFloat(d, 'e', 15, 64))
		b.WriteByte(' ')
	}
	for _, i := range m.Ints {
		b.WriteString(strconv.FormatInt(int64(i), 10))
		b.WriteByte(' ')
	}
	for _, v := range m.Bools {
		if v {
			b.WriteString("1 ")
		} else {
			b.WriteString("0 ")
		}
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// UnmarshalText parses one wire-format line (with or without the newline).
func (m *Message) UnmarshalText(line []byte) error {
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return fmt.Errorf("%w: short message %q", ErrProtocol, string(line))
	}
	version, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("%w: bad version %q", ErrProtocol, fields[0])
	}
	if version != ProtocolVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrProtocol, version, ProtocolVersion)
	}
	flag, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("%w: bad flag %q", ErrProtocol, fields[1])
	}
	*m = Message{Flag: flag}
	if flag != FlagContinue {
		return nil
	}

	if len(fields) < 6 {
		return fmt.Errorf("%w: missing header fields in %q", ErrProtocol, string(line))
	}
	var counts [3]int
	for i := range counts {
		n, err := strconv.Atoi(fields[2+i])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: bad vector length %q", ErrProtocol, fields[2+i])
		}
		counts[i] = n
	}
	if m.Time, err = strconv.ParseFloat(fields[5], 64); err != nil {
		return fmt.Errorf("%w: bad time %q", ErrProtocol, fields[5])
	}
	values := fields[6:]
	if want := counts[0] + counts[1] + counts[2]; len(values) != want {
		return fmt.Errorf("%w: got %d values, header announces %d", ErrProtocol, len(values), want)
	}

	m.Doubles = make([]float64, counts[0])
	for i := range m.Doubles {
		if m.Doubles[i], err = strconv.ParseFloat(values[i], 64); err != nil {
			return fmt.Errorf("%w: bad double %q", ErrProtocol, values[i])
		}
	}
	values = values[counts[0]:]
	m.Ints = make([]int32, counts[1])
	for i := range m.Ints {
		v, err := strconv.ParseInt(values[i], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: bad integer %q", ErrProtocol, values[i])
		}
		m.Ints[i] = int32(v)
	}
	values = values[counts[1]:]
	m.Bools = make([]bool, counts[2])
	for i := range m.Bools {
		switch values[i] {
		case "0":
		case "1":
			m.Bools[i] = true
		default:
			return fmt.Errorf("%w: bad boolean %q", ErrProtocol, values[i])
		}
	}
	return nil
}
