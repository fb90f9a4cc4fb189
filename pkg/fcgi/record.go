package fcgi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FCGI Record = Header(8) + content[0..65535] + padding[0..7]
// FCGI Header = version(1) + type(1) + requestId(2) + contentLen(2) + paddingLen(1) + reserved(1)
//
// Discrete records stand alone, streamed records end with an empty record (contentLen=0).

const (
	Version1   uint8 = 1
	HeaderSize       = 8
	MaxContent       = 65535
)

// RecordType is the type byte of a record header.
type RecordType uint8

const (
	TypeBeginRequest    RecordType = 1
	TypeAbortRequest    RecordType = 2
	TypeEndRequest      RecordType = 3
	TypeParams          RecordType = 4
	TypeStdin           RecordType = 5
	TypeStdout          RecordType = 6
	TypeStderr          RecordType = 7
	TypeData            RecordType = 8
	TypeGetValues       RecordType = 9
	TypeGetValuesResult RecordType = 10
	TypeUnknownType     RecordType = 11
)

// String implements fmt.Stringer
func (t RecordType) String() string {
	switch t {
	case TypeBeginRequest:
		return "FCGI_BEGIN_REQUEST"
	case TypeAbortRequest:
		return "FCGI_ABORT_REQUEST"
	case TypeEndRequest:
		return "FCGI_END_REQUEST"
	case TypeParams:
		return "FCGI_PARAMS"
	case TypeStdin:
		return "FCGI_STDIN"
	case TypeStdout:
		return "FCGI_STDOUT"
	case TypeStderr:
		return "FCGI_STDERR"
	case TypeData:
		return "FCGI_DATA"
	case TypeGetValues:
		return "FCGI_GET_VALUES"
	case TypeGetValuesResult:
		return "FCGI_GET_VALUES_RESULT"
	case TypeUnknownType:
		return "FCGI_UNKNOWN_TYPE"
	default:
		return fmt.Sprintf("FCGI_TYPE(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the eleven types the protocol defines.
func (t RecordType) Valid() bool {
	return t >= TypeBeginRequest && t <= TypeUnknownType
}

// Role is the role requested in FCGI_BEGIN_REQUEST. Only RoleResponder is ever sent.
type Role uint16

const (
	RoleResponder  Role = 1
	RoleAuthorizer Role = 2
	RoleFilter     Role = 3
)

// ProtocolStatus is the protocolStatus byte of FCGI_END_REQUEST.
type ProtocolStatus uint8

const (
	StatusRequestComplete ProtocolStatus = 0
	StatusCantMultiplex   ProtocolStatus = 1
	StatusOverloaded      ProtocolStatus = 2
	StatusUnknownRole     ProtocolStatus = 3
)

func (s ProtocolStatus) String() string {
	switch s {
	case StatusRequestComplete:
		return "REQUEST_COMPLETE"
	case StatusCantMultiplex:
		return "CANT_MPX_CONN"
	case StatusOverloaded:
		return "OVERLOADED"
	case StatusUnknownRole:
		return "UNKNOWN_ROLE"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

const flagKeepConn = 1

// Record is one framed unit on the wire, padding excluded.
type Record struct {
	Version   uint8
	Type      RecordType
	RequestID uint16
	Content   []byte
}

// paddingFor returns the padding that aligns a record with n content bytes to 8 bytes.
func paddingFor(n int) int {
	return -n & 7
}

// EncodeRecord returns the wire bytes of one record: header, content and zero padding.
func EncodeRecord(t RecordType, requestID uint16, content []byte) ([]byte, error) {
	if len(content) > MaxContent {
		return nil, ErrContentTooLarge
	}
	padding := paddingFor(len(content))
	buf := make([]byte, HeaderSize+len(content)+padding)
	putHeader(buf, t, requestID, len(content), padding)
	copy(buf[HeaderSize:], content)
	return buf, nil
}

func putHeader(dst []byte, t RecordType, requestID uint16, contentLen, paddingLen int) {
	dst[0] = Version1
	dst[1] = byte(t)
	binary.BigEndian.PutUint16(dst[2:4], requestID)
	binary.BigEndian.PutUint16(dst[4:6], uint16(contentLen))
	dst[6] = byte(paddingLen)
	dst[7] = 0 // reserved
}

// WriteRecord encodes one record and writes it to w.
func WriteRecord(w io.Writer, t RecordType, requestID uint16, content []byte) error {
	buf, err := EncodeRecord(t, requestID, content)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadRecord reads exactly one record from r. Padding is consumed and dropped.
// A clean EOF before the first header byte returns io.EOF; any shorter read
// inside a record returns an error matching ErrUnexpectedEOF. Undefined
// types and FCGI_UNKNOWN_TYPE are consumed and reported as a *ProtocolError.
func ReadRecord(r io.Reader) (*Record, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, wrapErr(KindUnexpectedEOF, "read header", 0, ErrUnexpectedEOF)
		}
		return nil, err
	}
	if header[0] != Version1 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unsupported version %d", header[0])}
	}
	rec := &Record{
		Version:   header[0],
		Type:      RecordType(header[1]),
		RequestID: binary.BigEndian.Uint16(header[2:4]),
	}
	contentLen := int(binary.BigEndian.Uint16(header[4:6]))
	paddingLen := int(header[6])

	// content and padding in one read, the padding is sliced off
	body := make([]byte, contentLen+paddingLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, wrapErr(KindUnexpectedEOF, "read body", rec.RequestID, ErrUnexpectedEOF)
		}
		return nil, err
	}
	rec.Content = body[:contentLen:contentLen]
	if !rec.Type.Valid() || rec.Type == TypeUnknownType {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected %s record", rec.Type)}
	}
	return rec, nil
}

func beginRequestBody(role Role, keepConn bool) []byte {
	body := make([]byte, 8) // role(2) + flags(1) + reserved(5)
	binary.BigEndian.PutUint16(body[0:2], uint16(role))
	if keepConn {
		body[2] = flagKeepConn
	}
	return body
}

type endRequest struct {
	appStatus      int32
	protocolStatus ProtocolStatus
}

func parseEndRequest(content []byte) (endRequest, error) {
	if len(content) < 8 { // appStatus(4) + protocolStatus(1) + reserved(3)
		return endRequest{}, &ProtocolError{Reason: fmt.Sprintf("end request body is %d bytes, want 8", len(content))}
	}
	return endRequest{
		appStatus:      int32(binary.BigEndian.Uint32(content[0:4])),
		protocolStatus: ProtocolStatus(content[4]),
	}, nil
}
