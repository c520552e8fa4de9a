// Package protocol owns the bus wire contract and the error kinds shared by
// its subpackages.
//
// Ownership boundary:
// - symbol: bus symbols, addresses, CRC and escaping
// - datafield: value descriptors turning payload bytes into text and back
// - message: message definitions, master preparation, decoding and the registry
package protocol
