//go:build windows

package tftp

// osLineTerminator is the host's line separator, consulted only when
// materialising NetASCII line breaks on disk.
const osLineTerminator = "\r\n"
