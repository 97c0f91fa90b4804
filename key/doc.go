// Package key provides the key tuples used to describe shard bounds and
// filter rows in an indexed dataset.
//
// A [Key] is an ordered list of named fields. Field order is significant:
// [Compare] walks the fields of its left operand in order, so a key decoded
// from a manifest keeps the field order it had on the wire.
//
// Values distinguish between "absent" ([Undefined]) and "present but null"
// ([Null]). An absent field never constrains a comparison. A null field in
// the right-hand operand of [Compare] is also skipped, but an equality match
// with [Matches] requires the row field to be null.
package key
