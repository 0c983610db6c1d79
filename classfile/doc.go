// Package classfile reads and writes JVM class files.
//
// The decoder keeps everything it does not interpret as raw bytes, so a
// parsed class written back with Bytes is byte-identical to its input unless
// the caller changed something. Interpreted structures:
//   - the constant pool, with add-or-find and cross-class Import
//   - fields, methods and their attributes
//   - Code attributes, line number and local variable tables
//   - runtime (in)visible annotations and parameter annotations
//   - field and method descriptors
//
// Utf8 constants hold their on-disk modified UTF-8 bytes unchanged.
package classfile
