// Package conv provides checked integer conversions.
//
// SQL drivers store integers as int64 while manifest versions are uint64;
// the conversions here reject values that would wrap.
package conv
