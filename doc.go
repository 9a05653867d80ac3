/*
Package objgraph persists graphs of polymorphic, pointer-linked objects as a
compact binary stream, and reconstructs an equivalent graph from it.

We implement:

1. Channels, a sequential byte stream opened for reading or writing, with
sticky fault bits instead of per-call errors.

2. Versioned codecs for counts, offsets and strings, so that a stream written
by an old version keeps its encodings forever.

3. A class registry keyed by a 16-bit name hash plus the owning application's
UUID, with a version-scoped rename table.

4. The object wire protocol: shared and cyclic references become
back-references to pass-local indices.

5. Detached objects, whose bodies live in a partition store and are fetched
on demand through an object catalog at the end of the stream.

# Technical Details

**Passes.**
Every top-level WriteObject or ReadObject call runs a pass. The first time an
object is seen in a pass it receives the next dense index, starting at 0, and
its body is written; later occurrences become back-references. Readers assign
indices in the same order, registering each object before decoding its
fields, so that the fields can refer back to it. BeginPass groups several
top-level objects into one pass.

**Class identities.**
The hash is computed over the canonical class name (decorations, pointer
markers and qualifiers removed), see CanonicalName and HashName. Streams
older than VersionClassUUID store the hash alone; the class is assumed to
belong to the first application in the header.

## Binary encoding

All fixed-width integers are little-endian.

**Header**: "OGRF", version (u32), application count (u16), then for each
application its UUID (16 bytes) and version (u32).

**Counts** (sizes, indices, locator fields) are u32 before Version64Bit and
u64 since; all ones means Unbounded.

**Strings** before VersionUnicode: byte length (u16, 0 or FFFF for absent),
then Windows-1252 bytes. Since: length in UTF-16 code units (u32, FFFFFFFF for
absent), then UTF-16LE data.

**Object references**: a discriminator byte, then:

	0 null
	1 back-reference, index (u16)
	2 object: class hash (u16), app UUID (16 bytes, since VersionClassUUID), fields
	3 back-reference, index (u8)
	4 back-reference, index (u32)
	5 back-reference, index (u64)
	6 detached object: partition (u32), offset (count), length (count)
	7 object catalog, see below

The narrowest back-reference that can carry the index is used. The all-ones
value of each width is reserved.

**Detached bodies** hold the class identity and the fields, exactly like an
inline object after the discriminator. Partition stores keep an xxhash64 of
each body after it.

**Object catalog**: entry count, then for each detached object its index
(count) and locator; followed by the trailer, which is the stream offset of
the catalog's discriminator (u64) and "OGRC".
*/
package objgraph
