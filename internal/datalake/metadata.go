package datalake

import (
	"bytes"
	"fmt"

	"gopkg.in/ini.v1"
)

const (
	metadataDir  = ".metadata"
	metadataFile = "metadata.ini"
)

// Separators such as ";" must not be read as inline comments.
var iniOptions = ini.LoadOptions{IgnoreInlineComment: true}

func init() {
	// Keep the [DEFAULT] header so sidecars stay readable by configparser.
	ini.DefaultHeader = true
}

// Metadata is the per-table sidecar describing how files are stored.
type Metadata struct {
	Format      string
	Separator   string
	Encoding    string
	Partitioned bool
	CurrentFile string
}

// DefaultMetadata is used when a table is written for the first time.
func DefaultMetadata() Metadata {
	return Metadata{Format: "csv", Separator: ";", Encoding: "utf-8"}
}

func parseMetadata(data []byte) (Metadata, error) {
	f, err := ini.LoadSources(iniOptions, data)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", metadataFile, err)
	}
	sec := f.Section(ini.DefaultSection)
	d := DefaultMetadata()
	return Metadata{
		Format:      sec.Key("format").MustString(d.Format),
		Separator:   sec.Key("separator").MustString(d.Separator),
		Encoding:    sec.Key("encoding").MustString(d.Encoding),
		Partitioned: sec.Key("partitioned").MustBool(false),
		CurrentFile: sec.Key("current_file").String(),
	}, nil
}

func (m Metadata) marshal() ([]byte, error) {
	f := ini.Empty(iniOptions)
	sec := f.Section(ini.DefaultSection)
	sec.Key("format").SetValue(m.Format)
	sec.Key("separator").SetValue(m.Separator)
	sec.Key("encoding").SetValue(m.Encoding)
	sec.Key("partitioned").SetValue(fmt.Sprintf("%t", m.Partitioned))
	if m.CurrentFile != "" {
		sec.Key("current_file").SetValue(m.CurrentFile)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", metadataFile, err)
	}
	return buf.Bytes(), nil
}
