package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Key layout:
//
//	category:<id>                            category record
//	category:idx:title:<title>               unique title index, value is the id
//	book:<id>                                book record
//	book:idx:category:<categoryID>:<bookID>  books per category, empty value
//	seq:category, seq:book                   last assigned id
//
// Ids are zero padded so prefix iteration returns records in id order.
const (
	categoryPrefix = "category:"
	bookPrefix     = "book:"
	indexInfix     = "idx:"

	categorySeqKey = "seq:category"
	bookSeqKey     = "seq:book"
)

func formatCategoryID(id uint16) string {
	return fmt.Sprintf("%05d", id)
}

func formatBookID(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// buildKey constructs a record key from prefix and id.
// Badger holds on to keys passed to txn.Set until commit, so keys are never pooled.
func buildKey(prefix, id string) []byte {
	buf := make([]byte, 0, len(prefix)+len(id))
	buf = append(buf, prefix...)
	buf = append(buf, id...)
	return buf
}

// buildIndexKey constructs an index key from prefix, index name, and indexed value.
func buildIndexKey(prefix, indexName, value string) []byte {
	buf := make([]byte, 0, len(prefix)+len(indexInfix)+len(indexName)+1+len(value))
	buf = append(buf, prefix...)
	buf = append(buf, indexInfix...)
	buf = append(buf, indexName...)
	buf = append(buf, ':')
	buf = append(buf, value...)
	return buf
}

// isIndexKey reports whether key belongs to an index under prefix rather than a record.
func isIndexKey(prefix string, key []byte) bool {
	return bytes.HasPrefix(key[len(prefix):], []byte(indexInfix))
}

func encodeSeq(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeSeq(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt sequence value of %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}
