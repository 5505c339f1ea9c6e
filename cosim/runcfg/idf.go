package runcfg

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Object is one IDF object: a class name followed by its fields.
type Object struct {
	Class  string
	Fields []string
}

// Is reports whether the object belongs to class (IDF classes are case-insensitive).
func (o Object) Is(class string) bool {
	return strings.EqualFold(o.Class, class)
}

// ParseIDF splits an IDF document into objects. Comments ('!' to end of
// line) are dropped.
func ParseIDF(r io.Reader) ([]Object, error) {
	var text strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '!'); i >= 0 {
			line = line[:i]
		}
		text.WriteString(line)
		text.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading IDF: %w", err)
	}

	var objs []Object
	chunks := strings.Split(text.String(), ";")
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if i == len(chunks)-1 {
			return nil, fmt.Errorf("IDF object %q is not terminated by ';'", strings.TrimSpace(chunk))
		}
		parts := strings.Split(chunk, ",")
		obj := Object{Class: strings.TrimSpace(parts[0])}
		for _, f := range parts[1:] {
			obj.Fields = append(obj.Fields, strings.TrimSpace(f))
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// WriteIDF renders objects one field per line.
func WriteIDF(w io.Writer, objs []Object) error {
	bw := bufio.NewWriter(w)
	for _, o := range objs {
		if len(o.Fields) == 0 {
			fmt.Fprintf(bw, "%s;\n\n", o.Class)
			continue
		}
		fmt.Fprintf(bw, "%s,\n", o.Class)
		for i, f := range o.Fields {
			sep := ","
			if i == len(o.Fields)-1 {
				sep = ";"
			}
			fmt.Fprintf(bw, "    %s%s\n", f, sep)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
