// Package bcvtb implements the companion socket channel: a TCP server that
// accepts exactly one peer and exchanges fixed-format numeric vectors with it
// using the BCVTB text protocol, plus the socket descriptor file the peer
// reads to find the server.
//
// # Wire format
//
// Every message is a single line of space separated fields terminated by
// '\n':
//
//	version flag nDbl nInt nBool time dbl... int... bool...
//
// version is always 2. A message with a non-zero flag carries only the
// version and the flag: 1 asks the peer to end the simulation, negative
// values report a peer-side failure.
package bcvtb
