package backup

import "encoding/binary"

// emptySQLiteFile returns the bytes of a minimal, well-formed, schema-empty
// SQLite database: a single 4096-byte page carrying the 100-byte file
// header followed by an empty leaf table b-tree page. This mirrors what
// `sqlite3 file.db ""` produces and lets tests exercise real
// PRAGMA/header-validation code paths without shelling out to a DB tool.
func emptySQLiteFile() []byte {
	const pageSize = 4096
	buf := make([]byte, pageSize)

	copy(buf[0:16], []byte("SQLite format 3\x00"))
	binary.BigEndian.PutUint16(buf[16:18], pageSize)
	buf[18] = 1 // file format write version
	buf[19] = 1 // file format read version
	buf[20] = 0 // reserved space per page
	buf[21] = 64
	buf[22] = 32
	buf[23] = 32
	binary.BigEndian.PutUint32(buf[24:28], 1) // file change counter
	binary.BigEndian.PutUint32(buf[28:32], 1) // size of db in pages
	binary.BigEndian.PutUint32(buf[40:44], 0) // schema cookie
	binary.BigEndian.PutUint32(buf[44:48], 4) // schema format number
	binary.BigEndian.PutUint32(buf[56:60], 1) // text encoding: UTF-8
	binary.BigEndian.PutUint32(buf[92:96], 1) // version-valid-for
	binary.BigEndian.PutUint32(buf[96:100], 3045000)

	// Leaf table b-tree page header for the (empty) sqlite_schema root page.
	buf[100] = 0x0D
	binary.BigEndian.PutUint16(buf[101:103], 0) // first freeblock
	binary.BigEndian.PutUint16(buf[103:105], 0) // number of cells
	binary.BigEndian.PutUint16(buf[105:107], pageSize) // cell content area start
	buf[107] = 0                                       // fragmented free bytes

	return buf
}
