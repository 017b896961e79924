package socks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	socks4ReplyVersion byte = 0x00
	socks4Granted      byte = 0x5a
	socks4Rejected     byte = 0x5b
)

// socks4Reply builds the 8-byte SOCKS4 reply.
func socks4Reply(code byte, port uint16, ip [4]byte) []byte {
	b := make([]byte, 0, 8)
	b = append(b, socks4ReplyVersion, code)
	b = binary.BigEndian.AppendUint16(b, port)
	return append(b, ip[:]...)
}

// socks5SuccessReply echoes request with VER, REP and RSV overwritten. The
// address and port are the client's own bytes, not re-encoded.
func socks5SuccessReply(request []byte) []byte {
	b := bytes.Clone(request)
	b[0] = txsocks5.Ver
	b[1] = txsocks5.RepSuccess
	b[2] = 0x00
	return b
}

func writeSOCKS4Failure(w io.Writer) error {
	if _, err := w.Write(socks4Reply(socks4Rejected, 0, [4]byte{})); err != nil {
		return fmt.Errorf("socks4 failure reply: %w", err)
	}
	return nil
}

// writeSOCKS5Failure writes a full RFC 1928 reply with a zero IPv4 bound
// address so stock clients can parse it.
func writeSOCKS5Failure(w io.Writer, rep byte) error {
	if _, err := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(w); err != nil {
		return fmt.Errorf("socks5 failure reply: %w", err)
	}
	return nil
}
