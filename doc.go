// Package tftp implements “The TFTP Protocol (Revision 2)” RFC 1350.
//
// The package covers the session layer shared by client and server: packet
// encoding and decoding, NetASCII line-ending translation, block-number
// arithmetic with 16-bit wraparound, and the lock-step request/acknowledgement
// state machine that drives one file transfer over a UDP socket pair. The
// welcome-socket dispatcher lives in the tftpd subpackage; the client-side
// precondition checks live in tftpc.
package tftp
