package natlink

import (
	"bytes"
	"encoding/binary"
)

// Chunk identifiers of the binary artifact, written in the order
// exports, imports, lists, words, rule definitions.
const (
	chunkWords   uint32 = 2
	chunkRules   uint32 = 3
	chunkExports uint32 = 4
	chunkImports uint32 = 5
	chunkLists   uint32 = 6
)

// encode serializes the artifact: an 8-byte zero header followed by the
// name/ID chunks and the rule-definition chunk, all little-endian.
func (c *Compiler) encode() []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 8))

	c.encodeIDChunk(&buf, chunkExports, c.rules, func(name string) bool { return c.exports[name] })
	c.encodeIDChunk(&buf, chunkImports, c.rules, func(name string) bool { return c.imports[name] })
	c.encodeIDChunk(&buf, chunkLists, c.lists, func(string) bool { return true })
	c.encodeIDChunk(&buf, chunkWords, c.words, func(string) bool { return true })
	c.encodeRuleChunk(&buf)
	return buf.Bytes()
}

// encodeIDChunk writes one name/ID table. Entries keep the IDs of the
// full interning table even when the include filter skips rows, and each
// name is NUL-padded so the entry size is a multiple of four.
func (c *Compiler) encodeIDChunk(buf *bytes.Buffer, id uint32, table *internTable, include func(string) bool) {
	var body bytes.Buffer
	for i, name := range table.names {
		if !include(name) {
			continue
		}
		padded := (len(name) + 4) &^ 3
		putU32(&body, uint32(padded+8))
		putU32(&body, uint32(i+1))
		body.WriteString(name)
		body.Write(make([]byte, padded-len(name)))
	}
	putU32(buf, id)
	putU32(buf, uint32(body.Len()))
	buf.Write(body.Bytes())
}

// encodeRuleChunk writes the definition token streams of every local
// rule, keyed by interned rule ID.
func (c *Compiler) encodeRuleChunk(buf *bytes.Buffer) {
	var body bytes.Buffer
	for i, name := range c.rules.names {
		if c.imports[name] {
			continue
		}
		tokens := c.definitions[name]
		putU32(&body, uint32(8+8*len(tokens)))
		putU32(&body, uint32(i+1))
		for _, t := range tokens {
			putU16(&body, t.Type)
			putU16(&body, t.Prob)
			putU32(&body, t.Value)
		}
	}
	putU32(buf, chunkRules)
	putU32(buf, uint32(body.Len()))
	buf.Write(body.Bytes())
}

func putU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
