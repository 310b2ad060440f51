// Package bnk reads Wwise soundbank files. A bank is a sequence of sections,
// each a 4-byte tag followed by a little-endian uint32 payload length: BKHD
// carries the bank header, DIDX the embedded-media directory, DATA the media
// payloads themselves. Banks are mapped read-only so probing many of them for
// one media ID touches only the directory pages.
package bnk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
)

var (
	tagBKHD = [4]byte{'B', 'K', 'H', 'D'}
	tagDIDX = [4]byte{'D', 'I', 'D', 'X'}
	tagDATA = [4]byte{'D', 'A', 'T', 'A'}
)

// ErrNoMedia is returned by [Bank.MediaData] when the bank does not embed the
// requested media ID.
var ErrNoMedia = errors.New("bnk: media not in bank")

// MediaEntry is one DIDX record: a media ID and its location inside DATA.
type MediaEntry struct {
	ID     uint32
	Offset uint32
	Length uint32
}

// Bank is an opened soundbank. Safe for concurrent reads; Close invalidates
// every slice previously returned by [Bank.MediaData].
type Bank struct {
	// Version and BankID come from the BKHD header.
	Version uint32
	BankID  uint32

	f    *os.File
	data mmap.MMap

	media    []MediaEntry
	mediaSet map[uint32]struct{}
	dataOff  int
	dataLen  int
}

// Open maps the bank at path and parses its section directory.
func Open(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bnk: open: %w", err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bnk: map %s: %w", path, err)
	}
	b := &Bank{f: f, data: m, mediaSet: make(map[uint32]struct{})}
	if err := b.parse(); err != nil {
		b.Close()
		return nil, fmt.Errorf("bnk: parse %s: %w", path, err)
	}
	return b, nil
}

// Close unmaps the bank.
func (b *Bank) Close() error {
	var errs []error
	if b.data != nil {
		errs = append(errs, b.data.Unmap())
		b.data = nil
	}
	if b.f != nil {
		errs = append(errs, b.f.Close())
		b.f = nil
	}
	return errors.Join(errs...)
}

func (b *Bank) parse() error {
	buf := []byte(b.data)
	if len(buf) < 8 || [4]byte(buf[:4]) != tagBKHD {
		return errors.New("missing BKHD header")
	}

	off := 0
	first := true
	for off+8 <= len(buf) {
		tag := [4]byte(buf[off : off+4])
		length := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		body := off + 8
		if length < 0 || body+length > len(buf) {
			return fmt.Errorf("section %q overruns file", tag[:])
		}

		switch tag {
		case tagBKHD:
			if !first {
				return errors.New("duplicate BKHD section")
			}
			if length < 8 {
				return errors.New("BKHD section too short")
			}
			b.Version = binary.LittleEndian.Uint32(buf[body : body+4])
			b.BankID = binary.LittleEndian.Uint32(buf[body+4 : body+8])
		case tagDIDX:
			if length%12 != 0 {
				return errors.New("DIDX length not a multiple of 12")
			}
			n := length / 12
			b.media = make([]MediaEntry, 0, n)
			for i := 0; i < n; i++ {
				rec := body + i*12
				e := MediaEntry{
					ID:     binary.LittleEndian.Uint32(buf[rec : rec+4]),
					Offset: binary.LittleEndian.Uint32(buf[rec+4 : rec+8]),
					Length: binary.LittleEndian.Uint32(buf[rec+8 : rec+12]),
				}
				b.media = append(b.media, e)
				b.mediaSet[e.ID] = struct{}{}
			}
		case tagDATA:
			b.dataOff = body
			b.dataLen = length
		}
		first = false
		off = body + length
	}
	if off != len(buf) {
		return errors.New("trailing bytes after last section")
	}
	return nil
}

// MediaIDs returns the embedded media IDs in ascending order.
func (b *Bank) MediaIDs() []uint32 {
	ids := make([]uint32, 0, len(b.media))
	for _, e := range b.media {
		ids = append(ids, e.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ContainsMedia reports whether the bank embeds the media ID.
func (b *Bank) ContainsMedia(id uint32) bool {
	_, ok := b.mediaSet[id]
	return ok
}

// MediaData returns the raw payload for a media ID as a zero-copy slice into
// the mapping. The slice is only valid until Close.
func (b *Bank) MediaData(id uint32) ([]byte, error) {
	for _, e := range b.media {
		if e.ID != id {
			continue
		}
		start := b.dataOff + int(e.Offset)
		end := start + int(e.Length)
		if b.dataLen == 0 || end > b.dataOff+b.dataLen || end > len(b.data) {
			return nil, fmt.Errorf("bnk: media %d overruns DATA section", id)
		}
		return b.data[start:end], nil
	}
	return nil, ErrNoMedia
}
