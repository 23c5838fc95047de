package roster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/extrame/xls"
)

// readXLS reads legacy BIFF workbooks. Rows the sheet does not store are
// returned as nil so sheet row numbers stay aligned.
func readXLS(content []byte, sheet string) (rows [][]string, found bool, err error) {
	if err := checkCompoundFile(content); err != nil {
		return nil, false, err
	}

	defer func() {
		// the BIFF decoder panics on some malformed records
		if r := recover(); r != nil {
			rows, found, err = nil, false, fmt.Errorf("decode xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, false, fmt.Errorf("open xls: %w", err)
	}
	if wb == nil {
		return nil, false, errors.New("open xls: no workbook stream")
	}

	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil || ws.Name != sheet {
			continue
		}
		rows = make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := sheetRow(ws, r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		return rows, true, nil
	}
	return nil, false, nil
}

// sheetRow returns nil for rows without a ROW record. WorkSheet.Row
// dereferences the missing entry, and Excel writes no record for blank rows.
func sheetRow(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

// Compound file layout constants. extrame/ole2 only reads 512 byte sectors.
const (
	cfbHeaderSize      = 512
	cfbSectorShift     = 9
	cfbSectorSize      = 1 << cfbSectorShift
	cfbDirEntrySize    = 128
	cfbHeaderFATSlots  = 109
	cfbMaxRegularSect  = 0xFFFFFFFA
	cfbEndOfChain      = 0xFFFFFFFE
	cfbFreeSect        = 0xFFFFFFFF
	cfbShortSectorSize = 64
)

var errTruncatedWorkbook = errors.New("truncated or corrupt compound file")

// checkCompoundFile verifies that every sector chain of an OLE2 container
// stays inside the uploaded bytes and terminates. extrame/ole2 follows
// chains without bounds checks, so a cut-off upload would otherwise loop or
// exit the process.
func checkCompoundFile(content []byte) error {
	if len(content) < cfbHeaderSize {
		return errTruncatedWorkbook
	}
	le := binary.LittleEndian
	if le.Uint16(content[30:]) != cfbSectorShift {
		return fmt.Errorf("unsupported sector size 2^%d", le.Uint16(content[30:]))
	}
	sectors := uint32((len(content) - cfbHeaderSize + cfbSectorSize - 1) / cfbSectorSize)
	sector := func(sid uint32) []byte {
		start := cfbHeaderSize + int(sid)*cfbSectorSize
		end := start + cfbSectorSize
		if end > len(content) {
			end = len(content)
		}
		return content[start:end]
	}

	fatSectors := le.Uint32(content[44:])
	dirStart := le.Uint32(content[48:])
	cutoff := le.Uint32(content[56:])
	miniFATStart := le.Uint32(content[60:])
	miniFATSectors := le.Uint32(content[64:])
	difStart := le.Uint32(content[68:])
	difSectors := le.Uint32(content[72:])
	if fatSectors == 0 || fatSectors > sectors {
		return errTruncatedWorkbook
	}

	fatSIDs := make([]uint32, 0, fatSectors)
	for i := uint32(0); i < fatSectors && i < cfbHeaderFATSlots; i++ {
		fatSIDs = append(fatSIDs, le.Uint32(content[76+4*i:]))
	}
	for sid, n := difStart, uint32(0); sid != cfbEndOfChain; n++ {
		if sid >= sectors || n >= difSectors {
			return errTruncatedWorkbook
		}
		dif := sector(sid)
		if len(dif) < cfbSectorSize {
			return errTruncatedWorkbook
		}
		for off := 0; off < cfbSectorSize-4 && uint32(len(fatSIDs)) < fatSectors; off += 4 {
			fatSIDs = append(fatSIDs, le.Uint32(dif[off:]))
		}
		sid = le.Uint32(dif[cfbSectorSize-4:])
	}
	if uint32(len(fatSIDs)) < fatSectors {
		return errTruncatedWorkbook
	}

	fat := make([]uint32, 0, len(fatSIDs)*cfbSectorSize/4)
	for _, sid := range fatSIDs {
		if sid >= sectors {
			return errTruncatedWorkbook
		}
		raw := sector(sid)
		if len(raw) < cfbSectorSize {
			return errTruncatedWorkbook
		}
		for off := 0; off < cfbSectorSize; off += 4 {
			fat = append(fat, le.Uint32(raw[off:]))
		}
	}
	limit := sectors
	if uint32(len(fat)) < limit {
		limit = uint32(len(fat))
	}
	for _, next := range fat {
		if next < cfbMaxRegularSect && next >= limit {
			return errTruncatedWorkbook
		}
	}
	if err := checkChains(fat, limit); err != nil {
		return err
	}

	if dirStart >= limit {
		return errTruncatedWorkbook
	}
	var dir []byte
	for sid := dirStart; sid != cfbEndOfChain; sid = fat[sid] {
		if sid >= limit {
			return errTruncatedWorkbook
		}
		dir = append(dir, sector(sid)...)
	}

	miniLimit := miniFATSectors * (cfbSectorSize/4 - 1)
	if miniFATSectors > 0 {
		if miniFATStart >= limit {
			return errTruncatedWorkbook
		}
		mini := sector(miniFATStart)
		for off := 0; off+4 <= len(mini) && off < cfbSectorSize-4; off += 4 {
			if next := le.Uint32(mini[off:]); next < cfbMaxRegularSect && next >= miniLimit {
				return errTruncatedWorkbook
			}
		}
	}

	for off := 0; off+cfbDirEntrySize <= len(dir); off += cfbDirEntrySize {
		entry := dir[off : off+cfbDirEntrySize]
		if entry[66] == 0 {
			break
		}
		if nameSize := le.Uint16(entry[64:]); nameSize < 2 || nameSize > 64 || nameSize%2 != 0 {
			return errTruncatedWorkbook
		}
		start := le.Uint32(entry[116:])
		size := le.Uint32(entry[120:])
		switch {
		case start == cfbEndOfChain || start == cfbFreeSect:
		case entry[66] == 5 || size >= cutoff:
			if start >= limit || uint64(size) > uint64(limit)*cfbSectorSize {
				return errTruncatedWorkbook
			}
		default:
			if start >= miniLimit || uint64(size) > uint64(miniLimit)*cfbShortSectorSize {
				return errTruncatedWorkbook
			}
		}
	}
	return nil
}

// checkChains rejects sector allocation tables whose chains loop.
func checkChains(fat []uint32, limit uint32) error {
	const (
		unvisited = iota
		walking
		done
	)
	state := make([]uint8, limit)
	for start := uint32(0); start < limit; start++ {
		if state[start] != unvisited {
			continue
		}
		sid := start
		for sid < limit && state[sid] == unvisited {
			state[sid] = walking
			sid = fat[sid]
		}
		if sid < limit && state[sid] == walking {
			return errTruncatedWorkbook
		}
		for s := start; s < limit && state[s] == walking; s = fat[s] {
			state[s] = done
		}
	}
	return nil
}
