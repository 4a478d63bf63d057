// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package geoip resolves IP addresses to geographic locations.
//
// The primary source is a local MMDB database: a bit-indexed binary search
// tree over IP address bits whose leaves point into a self-describing data
// section, terminated by a metadata block located by scanning backward from
// end-of-file for a fixed marker. The Resolver layers caching on top and
// falls back to a remote geolocation API when the local database is missing
// or structurally invalid.
package geoip

import (
	"bytes"
	"fmt"
	"net"
	"os"
)

// metadataMarker separates the data section from the metadata block. The
// metadata block is the last occurrence of this marker to end-of-file.
var metadataMarker = []byte("\xab\xcd\xefMaxMind.com")

// maximum distance from EOF the marker may appear at; matches the format's
// 128KiB metadata ceiling.
const metadataMaxSize = 128 * 1024

// dataSectionSeparatorSize is the run of zero bytes between the search tree
// and the data section.
const dataSectionSeparatorSize = 16

// Metadata describes the database layout, decoded from the metadata block
// with the same self-describing decoder used for the data section.
type Metadata struct {
	NodeCount    uint
	RecordSize   uint // bits per record: 24, 28 or 32
	IPVersion    uint // 4 or 6
	DatabaseType string
	BuildEpoch   uint64
}

// Reader is an open MMDB database. It is safe for concurrent use; all state
// is immutable after construction.
type Reader struct {
	buffer    []byte
	metadata  Metadata
	decoder   decoder
	nodeSize  uint // bytes per node (two records)
	treeSize  uint
	dataStart uint // absolute offset of the data section
	ipv4Start uint // node index to start IPv4 lookups at in an IPv6 tree
}

// Open opens an MMDB database file and validates its structure.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: reading database %s: %w", path, err)
	}
	return NewReader(data)
}

// NewReader constructs a Reader from an in-memory MMDB image.
func NewReader(buffer []byte) (*Reader, error) {
	metadataStart, err := findMetadataStart(buffer)
	if err != nil {
		return nil, err
	}

	metaDecoder := decoder{buffer: buffer}
	rawMeta, _, err := metaDecoder.decode(metadataStart)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidDatabase, err)
	}
	metaMap, ok := rawMeta.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: metadata is not a map", ErrInvalidDatabase)
	}

	metadata, err := parseMetadata(metaMap)
	if err != nil {
		return nil, err
	}

	nodeSize := metadata.RecordSize * 2 / 8
	treeSize := metadata.NodeCount * nodeSize
	dataStart := treeSize + dataSectionSeparatorSize
	if dataStart >= uint(len(buffer)) {
		return nil, fmt.Errorf("%w: search tree exceeds file size", ErrInvalidDatabase)
	}

	r := &Reader{
		buffer:    buffer,
		metadata:  metadata,
		decoder:   decoder{buffer: buffer[dataStart:metadataStart]},
		nodeSize:  nodeSize,
		treeSize:  treeSize,
		dataStart: dataStart,
	}

	if metadata.IPVersion == 6 {
		if err := r.computeIPv4Start(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Metadata returns the decoded database metadata.
func (r *Reader) Metadata() Metadata {
	return r.metadata
}

// Lookup walks the search tree for ip and decodes the record it lands on.
// Returns ErrNotFound for addresses absent from the tree and
// ErrInvalidDatabase / ErrTruncatedRead / ErrUnknownType for structural
// failures.
func (r *Reader) Lookup(ip net.IP) (map[string]interface{}, error) {
	if ip == nil {
		return nil, fmt.Errorf("%w: nil address", ErrNotFound)
	}

	bits := 128
	node := uint(0)
	if v4 := ip.To4(); v4 != nil {
		bits = 32
		ip = v4
		if r.metadata.IPVersion == 6 {
			// IPv4 addresses sit under 96 leading zero bits in an
			// IPv6-structured tree; start from the precomputed node.
			node = r.ipv4Start
		}
	} else if r.metadata.IPVersion == 4 {
		return nil, fmt.Errorf("%w: IPv6 address in IPv4 database", ErrNotFound)
	} else {
		ip = ip.To16()
	}

	for i := 0; i < bits; i++ {
		if node >= r.metadata.NodeCount {
			break
		}
		bit := uint(ip[i>>3]>>(7-uint(i%8))) & 1
		next, err := r.readRecord(node, bit)
		if err != nil {
			return nil, err
		}
		node = next
	}

	switch {
	case node == r.metadata.NodeCount:
		return nil, ErrNotFound
	case node > r.metadata.NodeCount:
		return r.decodeDataRecord(node)
	default:
		return nil, fmt.Errorf("%w: tree walk ended inside the tree", ErrInvalidDatabase)
	}
}

// computeIPv4Start follows 96 zero bits from the root so IPv4 lookups can
// skip the IPv6 prefix levels.
func (r *Reader) computeIPv4Start() error {
	node := uint(0)
	for i := 0; i < 96 && node < r.metadata.NodeCount; i++ {
		next, err := r.readRecord(node, 0)
		if err != nil {
			return err
		}
		node = next
	}
	r.ipv4Start = node
	return nil
}

// readRecord reads one record of a tree node. bit selects the left (0) or
// right (1) record.
func (r *Reader) readRecord(node, bit uint) (uint, error) {
	base := node * r.nodeSize
	if base+r.nodeSize > uint(len(r.buffer)) {
		return 0, fmt.Errorf("%w: node %d out of range", ErrInvalidDatabase, node)
	}

	switch r.metadata.RecordSize {
	case 24:
		off := base + bit*3
		b := r.buffer[off : off+3]
		return uint(b[0])<<16 | uint(b[1])<<8 | uint(b[2]), nil

	case 28:
		if bit == 0 {
			b := r.buffer[base : base+4]
			return uint(b[3]>>4)<<24 | uint(b[0])<<16 | uint(b[1])<<8 | uint(b[2]), nil
		}
		b := r.buffer[base+3 : base+7]
		return uint(b[0]&0x0f)<<24 | uint(b[1])<<16 | uint(b[2])<<8 | uint(b[3]), nil

	case 32:
		off := base + bit*4
		b := r.buffer[off : off+4]
		return uint(b[0])<<24 | uint(b[1])<<16 | uint(b[2])<<8 | uint(b[3]), nil

	default:
		return 0, fmt.Errorf("%w: record size %d", ErrInvalidDatabase, r.metadata.RecordSize)
	}
}

// decodeDataRecord resolves a tree pointer value into the data section and
// decodes the value there.
func (r *Reader) decodeDataRecord(pointer uint) (map[string]interface{}, error) {
	offset := pointer - r.metadata.NodeCount - dataSectionSeparatorSize
	if offset >= uint(len(r.decoder.buffer)) {
		return nil, fmt.Errorf("%w: data pointer %d out of range", ErrInvalidDatabase, pointer)
	}

	value, _, err := r.decoder.decode(offset)
	if err != nil {
		return nil, err
	}
	record, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: record is %T, not map", ErrInvalidDatabase, value)
	}
	return record, nil
}

// findMetadataStart scans backward from end-of-file for the metadata marker
// and returns the offset just past it.
func findMetadataStart(buffer []byte) (uint, error) {
	searchFrom := 0
	if len(buffer) > metadataMaxSize {
		searchFrom = len(buffer) - metadataMaxSize
	}

	idx := bytes.LastIndex(buffer[searchFrom:], metadataMarker)
	if idx < 0 {
		return 0, fmt.Errorf("%w: metadata marker not found", ErrInvalidDatabase)
	}
	return uint(searchFrom + idx + len(metadataMarker)), nil
}

// parseMetadata extracts and validates the fields the reader needs.
func parseMetadata(m map[string]interface{}) (Metadata, error) {
	var meta Metadata

	nodeCount, ok := m["node_count"].(uint64)
	if !ok || nodeCount == 0 {
		return meta, fmt.Errorf("%w: missing node_count", ErrInvalidDatabase)
	}
	recordSize, ok := m["record_size"].(uint64)
	if !ok {
		return meta, fmt.Errorf("%w: missing record_size", ErrInvalidDatabase)
	}
	switch recordSize {
	case 24, 28, 32:
	default:
		return meta, fmt.Errorf("%w: unsupported record size %d", ErrInvalidDatabase, recordSize)
	}
	ipVersion, ok := m["ip_version"].(uint64)
	if !ok || (ipVersion != 4 && ipVersion != 6) {
		return meta, fmt.Errorf("%w: bad ip_version", ErrInvalidDatabase)
	}

	meta.NodeCount = uint(nodeCount)
	meta.RecordSize = uint(recordSize)
	meta.IPVersion = uint(ipVersion)
	if dbType, ok := m["database_type"].(string); ok {
		meta.DatabaseType = dbType
	}
	if epoch, ok := m["build_epoch"].(uint64); ok {
		meta.BuildEpoch = epoch
	}

	return meta, nil
}
