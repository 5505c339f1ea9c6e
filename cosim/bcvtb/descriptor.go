package bcvtb

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultDescriptorName is the file the companion looks for in its working
// directory.
const DefaultDescriptorName = "socket.cfg"

type descriptorDoc struct {
	XMLName xml.Name `xml:"BCVTB-client"`
	Socket  struct {
		Port     int    `xml:"port,attr"`
		Hostname string `xml:"hostname,attr"`
	} `xml:"ipc>socket"`
}

// WriteDescriptor writes the socket descriptor advertising host:port into dir.
func WriteDescriptor(dir, name, host string, port int) (string, error) {
	var doc descriptorDoc
	doc.Socket.Port = port
	doc.Socket.Hostname = host

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding socket descriptor: %w", err)
	}
	path := filepath.Join(dir, name)
	data := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?>`+"\n"), body...)
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing socket descriptor: %w", err)
	}
	return path, nil
}

// ReadDescriptor returns the host and port advertised by a descriptor file.
func ReadDescriptor(path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("reading socket descriptor: %w", err)
	}
	var doc descriptorDoc
	dec := xml.NewDecoder(bytes.NewReader(data))
	// The descriptor only ever holds ASCII, so the declared Latin-1 is read as is.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(&doc); err != nil {
		return "", 0, fmt.Errorf("parsing socket descriptor: %w", err)
	}
	if doc.Socket.Port <= 0 || doc.Socket.Hostname == "" {
		return "", 0, fmt.Errorf("socket descriptor %s lacks host or port", path)
	}
	return doc.Socket.Hostname, doc.Socket.Port, nil
}
